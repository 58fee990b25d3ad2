// Package query turns free-text user input into a provider search query.
//
// The provider query is deliberately broad to maximize recall; the literal
// match variations returned alongside it let the caller re-check candidates
// against the fields it can actually see and discard false positives.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// invoiceKeywords is the curated invoice-domain vocabulary. Amount searches
// are narrowed with the first six entries.
var invoiceKeywords = []string{
	"factura", "invoice", "pedido", "order", "albaran", "albarán",
	"compra", "purchase", "pago", "payment", "recibo", "receipt",
	"proforma", "presupuesto", "quote", "orden", "delivery", "nota",
}

// narrowKeywordCount is how many keywords narrow a monetary-amount search.
const narrowKeywordCount = 6

var (
	// identifierPattern matches order/reference identifiers: 8+ alphanumeric
	// characters, optionally hyphen-segmented (e.g. ES5112345678, ABC123-45X).
	identifierPattern = regexp.MustCompile(`(?i)\b[A-Z0-9]{8,}(?:-[A-Z0-9]+)*\b`)

	// invoiceNumberPattern matches invoice numbers: an optional short letter
	// prefix followed by 4+ digits (e.g. FA-2024001, INV 88231, 50012).
	invoiceNumberPattern = regexp.MustCompile(`(?i)\b(?:FA|FC|FV|INV|F)?[\s-]?\d{4,}[\s-]?\d*\b`)

	// moneyPattern matches a numeral optionally flanked by a currency symbol.
	// The capture group holds the bare numeral.
	moneyPattern = regexp.MustCompile(`[€$]?\s*(\d+(?:[.,]\d+)?)\s*[€$]?`)
)

// Built is the result of query classification: the provider query string and
// the literal variations the content validator re-checks candidates against.
type Built struct {
	Provider   string
	Variations []string
}

// Build classifies the raw query and rewrites it for the provider. The date
// bound is now minus lookbackMonths; zero months means no lower bound.
//
// Classification order, first match wins: identifier, invoice number,
// monetary amount, generic phrase variations.
func Build(raw string, lookbackMonths int, now time.Time) Built {
	q := strings.TrimSpace(raw)
	dateClause := dateBound(lookbackMonths, now)

	switch {
	case identifierPattern.MatchString(q) || invoiceNumberPattern.MatchString(q):
		// Already specific; wrap unmodified without keyword narrowing.
		return Built{
			Provider:   fmt.Sprintf("has:attachment (%s)%s", q, dateClause),
			Variations: baseVariations(q),
		}

	case moneyPattern.MatchString(q):
		m := moneyPattern.FindStringSubmatch(q)
		keywords := strings.Join(invoiceKeywords[:narrowKeywordCount], " OR ")
		return Built{
			Provider: fmt.Sprintf("has:attachment (%s OR %s) (%s)%s",
				strings.TrimSpace(m[0]), m[1], keywords, dateClause),
			Variations: baseVariations(q),
		}

	default:
		variations := phraseVariations(q)
		quoted := make([]string, len(variations))
		for i, v := range variations {
			quoted[i] = `"` + v + `"`
		}
		return Built{
			Provider:   fmt.Sprintf("has:attachment (%s)%s", strings.Join(quoted, " OR "), dateClause),
			Variations: variations,
		}
	}
}

// dateBound encodes a lookback window as a provider "after:" clause,
// or returns empty for a zero window.
func dateBound(months int, now time.Time) string {
	if months <= 0 {
		return ""
	}
	return " after:" + now.AddDate(0, -months, 0).Format("2006/01/02")
}

// baseVariations returns the four case forms of the query, deduplicated in
// insertion order.
func baseVariations(q string) []string {
	return dedupe([]string{
		q,
		strings.ToUpper(q),
		strings.ToLower(q),
		titleCase(q),
	})
}

// phraseVariations returns the full literal phrase set for the generic path:
// the four case forms, plus each of them with whitespace stripped when the
// query contains whitespace and stripping changes it.
func phraseVariations(q string) []string {
	variations := []string{
		q,
		strings.ToUpper(q),
		strings.ToLower(q),
		titleCase(q),
	}

	if stripped := stripSpace(q); stripped != q {
		variations = append(variations,
			stripped,
			strings.ToUpper(stripped),
			strings.ToLower(stripped),
			stripSpace(titleCase(q)),
		)
	}

	return dedupe(variations)
}

// titleCase capitalizes the first letter of each whitespace-delimited word
// and lowercases the rest.
func titleCase(q string) string {
	words := strings.Fields(q)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// stripSpace removes all whitespace from s.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// dedupe removes duplicates preserving first-appearance order.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Keywords returns a copy of the full invoice-domain keyword list.
func Keywords() []string {
	out := make([]string, len(invoiceKeywords))
	copy(out, invoiceKeywords)
	return out
}
