package search

import "strings"

// MatchesAny reports whether any of the literal query variations appears,
// case-insensitively, in the fields of rec a user can actually see. The
// provider-side query is intentionally broad to maximize recall, so
// candidates it returns must be re-checked against visible content before
// they are surfaced.
func MatchesAny(rec *MessageRecord, variations []string) bool {
	text := searchableText(rec)
	for _, v := range variations {
		if strings.Contains(text, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

// searchableText concatenates the visible fields of a record, lowercased:
// subject, from, to, snippet, and every attachment filename.
func searchableText(rec *MessageRecord) string {
	parts := []string{rec.Subject, rec.From, rec.To, rec.Snippet}
	for _, att := range rec.Attachments {
		parts = append(parts, att.Filename)
	}
	return strings.ToLower(strings.Join(parts, " "))
}
