package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

// offsetValue is a byte offset flag accepting decimal, 0x hex, 0o octal or
// 0b binary. It remembers whether it was set so an unset flag does not
// override the layout profile.
type offsetValue struct {
	value int
	set   bool
}

var _ pflag.Value = (*offsetValue)(nil)

func (o *offsetValue) String() string {
	if !o.set {
		return ""
	}
	return fmt.Sprintf("%#x", o.value)
}

func (o *offsetValue) Set(s string) error {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", s, err)
	}
	if v < 0 || v > int64(^uint32(0)) {
		return fmt.Errorf("offset %q out of range", s)
	}
	o.value = int(v)
	o.set = true
	return nil
}

func (o *offsetValue) Type() string {
	return "offset"
}

// ptr returns the offset, or nil when the flag was not given.
func (o *offsetValue) ptr() *int {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}
