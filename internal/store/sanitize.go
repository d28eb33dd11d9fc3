package store

import "strings"

// UniqueAttachmentFilename builds the globally unique filename used for
// local downloads, Redmine uploads and SharePoint names alike. The jira id
// prefix guarantees uniqueness; the sanitizer guarantees every target
// accepts the name.
func UniqueAttachmentFilename(jiraAttachmentID, filename string) string {
	return jiraAttachmentID + "__" + SanitizeFilename(filename)
}

// SanitizeFilename maps a Jira attachment filename onto the character set
// every storage target accepts. Anything outside [A-Za-z0-9._-] becomes an
// underscore; an empty result falls back to "file". Long names are cut to
// 150 bytes keeping the extension.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "file"
	}
	if len(out) > 150 {
		ext := ""
		if idx := strings.LastIndex(out, "."); idx > 0 && len(out)-idx <= 16 {
			ext = out[idx:]
		}
		out = out[:150-len(ext)] + ext
	}
	return out
}
