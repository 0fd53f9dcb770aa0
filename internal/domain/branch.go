package domain

import "strings"

// DeriveBranchName builds the canonical branch name from the two identity
// strings: strip to alphanumerics and spaces, uppercase, spaces to
// underscores, joined with an underscore and suffixed _AI_FIX.
func DeriveBranchName(teamName, leaderName string) string {
	return sanitizeIdentity(teamName) + "_" + sanitizeIdentity(leaderName) + "_AI_FIX"
}

func sanitizeIdentity(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	cleaned := strings.ToUpper(strings.TrimSpace(b.String()))
	return strings.ReplaceAll(cleaned, " ", "_")
}
