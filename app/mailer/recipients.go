package mailer

import (
	"strings"
)

// NormalizeRecipients splits comma-joined values, trims them and drops blanks
// and repeats. Order is preserved.
func NormalizeRecipients(values ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			key := strings.ToLower(part)
			if part == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, part)
		}
	}
	return out
}

// MaskRecipients hides the local part of each address for logging.
func MaskRecipients(recipients []string) []string {
	masked := make([]string, 0, len(recipients))
	for _, r := range recipients {
		local, domain, ok := strings.Cut(r, "@")
		switch {
		case !ok:
			masked = append(masked, "***@***")
		case len([]rune(local)) <= 1:
			masked = append(masked, "*@"+domain)
		default:
			masked = append(masked, string([]rune(local)[0])+"***@"+domain)
		}
	}
	return masked
}
