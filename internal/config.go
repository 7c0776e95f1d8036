package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/sensiblebit/winckit"
	"gopkg.in/yaml.v3"
)

// BuiltinProfileName names the layout profile that is always available.
const BuiltinProfileName = "atwinc1500"

// ErrUnknownProfile is returned when a requested layout profile is not defined.
var ErrUnknownProfile = errors.New("unknown layout profile")

// LayoutProfile is one named firmware layout from the profiles YAML file.
// Offsets accept decimal or 0x-prefixed hex.
type LayoutProfile struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description,omitempty"`
	RootStoreOffset int    `yaml:"rootStoreOffset"`
	TLSStoreOffset  int    `yaml:"tlsStoreOffset"`
}

// Layout returns the profile's store offsets.
func (p LayoutProfile) Layout() winckit.Layout {
	return winckit.Layout{RootStoreOffset: p.RootStoreOffset, TLSStoreOffset: p.TLSStoreOffset}
}

// ProfilesYAML represents the full YAML structure with a default and profiles.
type ProfilesYAML struct {
	DefaultProfile string          `yaml:"defaultProfile,omitempty"`
	Profiles       []LayoutProfile `yaml:"profiles"`
}

// BuiltinProfiles returns the profile set used when no profiles file is given.
func BuiltinProfiles() ProfilesYAML {
	return ProfilesYAML{
		DefaultProfile: BuiltinProfileName,
		Profiles: []LayoutProfile{{
			Name:            BuiltinProfileName,
			Description:     "ATWINC1500 flash image",
			RootStoreOffset: winckit.DefaultRootStoreOffset,
			TLSStoreOffset:  winckit.DefaultTLSStoreOffset,
		}},
	}
}

// LoadProfiles loads layout profiles from the specified YAML file. The
// built-in profile stays available unless the file redefines it, and is the
// default unless the file names another.
func LoadProfiles(path string) (ProfilesYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProfilesYAML{}, fmt.Errorf("reading profiles: %w", err)
	}

	var file ProfilesYAML
	if err := yaml.Unmarshal(data, &file); err != nil || len(file.Profiles) == 0 {
		// Fall back to a bare array of profiles
		var list []LayoutProfile
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			if err == nil {
				err = listErr
			}
			return ProfilesYAML{}, fmt.Errorf("parsing profiles %s: %w", path, err)
		}
		file = ProfilesYAML{Profiles: list}
	}

	merged := BuiltinProfiles()
	if file.DefaultProfile != "" {
		merged.DefaultProfile = file.DefaultProfile
	}
	seen := make(map[string]bool)
	for _, p := range file.Profiles {
		if err := validateProfile(p); err != nil {
			return ProfilesYAML{}, fmt.Errorf("parsing profiles %s: %w", path, err)
		}
		if seen[p.Name] {
			return ProfilesYAML{}, fmt.Errorf("parsing profiles %s: duplicate profile %q", path, p.Name)
		}
		seen[p.Name] = true
		if p.Name == BuiltinProfileName {
			merged.Profiles[0] = p
			continue
		}
		merged.Profiles = append(merged.Profiles, p)
	}
	return merged, nil
}

func validateProfile(p LayoutProfile) error {
	if p.Name == "" {
		return errors.New("profile without a name")
	}
	if p.RootStoreOffset < 0 || p.TLSStoreOffset < 0 {
		return fmt.Errorf("profile %q: negative offset", p.Name)
	}
	return nil
}

// Lookup returns the named profile, or the default profile when name is empty.
func (c ProfilesYAML) Lookup(name string) (LayoutProfile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return LayoutProfile{}, fmt.Errorf("%w %q", ErrUnknownProfile, name)
}

// Names returns the profile names in file order.
func (c ProfilesYAML) Names() []string {
	names := make([]string, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		names = append(names, p.Name)
	}
	return names
}

// LayoutInput holds parameters for ResolveLayout.
type LayoutInput struct {
	ProfilesFile    string // empty uses the built-in profiles
	Profile         string // empty uses the default profile
	RootStoreOffset *int   // overrides the profile when non-nil
	TLSStoreOffset  *int   // overrides the profile when non-nil
}

// ResolveLayout selects a profile and applies explicit offset overrides.
func ResolveLayout(input LayoutInput) (winckit.Layout, error) {
	profiles := BuiltinProfiles()
	if input.ProfilesFile != "" {
		var err error
		if profiles, err = LoadProfiles(input.ProfilesFile); err != nil {
			return winckit.Layout{}, err
		}
	}
	profile, err := profiles.Lookup(input.Profile)
	if err != nil {
		return winckit.Layout{}, err
	}

	layout := profile.Layout()
	if input.RootStoreOffset != nil {
		layout.RootStoreOffset = *input.RootStoreOffset
	}
	if input.TLSStoreOffset != nil {
		layout.TLSStoreOffset = *input.TLSStoreOffset
	}
	return layout, nil
}
