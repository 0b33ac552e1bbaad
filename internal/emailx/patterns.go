package emailx

import (
	"fmt"
	"strings"
)

// Pattern is one candidate email address plus the rank of the naming pattern
// that produced it. Rank 0 is the most common corporate pattern; the scorer
// treats ranks 0-2 as the high-frequency group.
type Pattern struct {
	Email string
	Rank  int
}

// GeneratePatterns produces candidate addresses for a person at a domain,
// ordered by decreasing likelihood: first.last, firstlast, first, f+last,
// first+l. Variants that need a last name are omitted when none is given, so
// a first-name-only contact collapses to a single candidate. Names are
// lowercased and stripped of all whitespace first. The function is pure and
// deterministic; an empty first name or domain yields nil.
func GeneratePatterns(firstName, lastName, domain string) []Pattern {
	first := collapse(firstName)
	last := collapse(lastName)
	domain = strings.TrimSpace(strings.ToLower(domain))

	if first == "" || domain == "" {
		return nil
	}

	var locals []string
	if last != "" {
		locals = []string{
			first + "." + last,
			first + last,
			first,
			first[:1] + last,
			first + last[:1],
		}
	} else {
		locals = []string{first}
	}

	patterns := make([]Pattern, 0, len(locals))
	for rank, local := range locals {
		patterns = append(patterns, Pattern{
			Email: fmt.Sprintf("%s@%s", local, domain),
			Rank:  rank,
		})
	}
	return patterns
}

func collapse(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "")
}
