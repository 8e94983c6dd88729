package conversation

import (
	"fmt"
	"sort"
	"strings"
)

// Dedupe returns msgs in chronological order with repeated
// (role, content) pairs removed. The earliest occurrence is kept.
func Dedupe(msgs []Message) []Message {
	sorted := append([]Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	type key struct{ role, content string }
	seen := make(map[key]bool, len(sorted))
	out := sorted[:0]
	for _, m := range sorted {
		k := key{m.Role, m.Content}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out
}

// FormatHistory renders a chat for a human reader: deduplicated,
// grouped under a date header whenever the day changes, one line per
// message.
//
//	=== CHAT HISTORY ===
//
//	[Date: 2025-06-15]
//	[14:30:00] USER: hello
func FormatHistory(msgs []Message) string {
	var b strings.Builder
	b.WriteString("=== CHAT HISTORY ===\n")

	var day string
	for _, m := range Dedupe(msgs) {
		ts := m.Timestamp.UTC()
		if d := ts.Format("2006-01-02"); d != day {
			day = d
			fmt.Fprintf(&b, "\n[Date: %s]\n", day)
		}
		role := m.Role
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", ts.Format("15:04:05"), strings.ToUpper(role), m.Content)
	}
	return b.String()
}
