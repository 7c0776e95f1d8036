package internal

import (
	"fmt"
	"strings"

	"github.com/sensiblebit/winckit/internal/certstore"
)

// CertAnnotation returns a parenthetical annotation like " (2 expired, 1 untrusted)"
// for non-zero counts, or an empty string if both are zero.
func CertAnnotation(expired, untrusted int) string {
	var parts []string
	if expired > 0 {
		parts = append(parts, fmt.Sprintf("%d expired", expired))
	}
	if untrusted > 0 {
		parts = append(parts, fmt.Sprintf("%d untrusted", untrusted))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// FormatScanSummary renders the human-readable scan summary.
func FormatScanSummary(s certstore.ScanSummary, images int) string {
	var sb strings.Builder
	total := s.Roots + s.Intermediates + s.Leaves
	fmt.Fprintf(&sb, "\nDecoded %d image(s): %d trust anchor(s), %d certificate(s) and %d key(s)\n", images, s.Anchors, total, s.Keys)
	if s.Anchors > 0 {
		fmt.Fprintf(&sb, "  Anchors:       %d RSA, %d ECDSA%s\n", s.RSAAnchors, s.ECDSAAnchors, CertAnnotation(s.ExpiredAnchors, 0))
	}
	if total > 0 {
		fmt.Fprintf(&sb, "  Roots:         %d\n", s.Roots)
		fmt.Fprintf(&sb, "  Intermediates: %d%s\n", s.Intermediates, CertAnnotation(s.ExpiredIntermediates, s.UntrustedIntermediates))
		fmt.Fprintf(&sb, "  Leaves:        %d%s\n", s.Leaves, CertAnnotation(s.ExpiredLeaves, s.UntrustedLeaves))
	}
	if s.Keys > 0 {
		fmt.Fprintf(&sb, "  Key-cert pairs: %d\n", s.Matched)
	}
	return sb.String()
}
