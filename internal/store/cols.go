package store

import "strings"

func splitCols(cols string) []string {
	raw := strings.Split(cols, ",")
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}
