package emailx

import (
	"regexp"
	"strings"
)

// Label describes estimated deliverability, in increasing trust order:
// invalid < low < uncertain < medium < high.
type Label string

const (
	LabelInvalid   Label = "invalid"
	LabelLow       Label = "low"
	LabelUncertain Label = "uncertain"
	LabelMedium    Label = "medium"
	LabelHigh      Label = "high"
)

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-']+@[a-z0-9.-]+\.[a-z]{2,}$`)

// Consumer webmail providers that reject SMTP verification probes. Addresses
// at these domains can never be confirmed by cheap signals.
var blockingProviders = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"icloud.com":     {},
	"me.com":         {},
	"mac.com":        {},
	"aol.com":        {},
	"protonmail.com": {},
	"tutanota.com":   {},
	"mailbox.org":    {},
}

// ValidSyntax reports whether the address matches the accepted email shape.
// Addresses are expected to be lowercased already.
func ValidSyntax(email string) bool {
	return emailPattern.MatchString(email)
}

// IsBlockingProvider reports whether the address belongs to a provider in the
// verification-blocking set.
func IsBlockingProvider(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	_, ok := blockingProviders[strings.ToLower(email[at+1:])]
	return ok
}

// Signals carries the cheap deliverability evidence gathered for a candidate.
type Signals struct {
	DomainHasMX          bool
	ProviderBlocking     bool
	MatchesCompanyDomain bool
	PatternRank          int
	HasProfileSignal     bool
}

// topPatternRanks is the number of leading patterns common enough to justify a
// high label on a matching corporate domain.
const topPatternRanks = 3

// Score assigns a confidence label to a candidate email. Rules are evaluated
// in order and the first match wins:
//
//  1. malformed syntax            -> invalid
//  2. no MX record on the domain  -> low
//  3. verification-blocking host  -> uncertain
//  4. company domain + top pattern-> high
//  5. otherwise                   -> medium
//
// A positive profile-existence signal upgrades medium to high. Score never
// probes anything itself; callers supply the evidence.
func Score(email string, sig Signals) Label {
	if !ValidSyntax(email) {
		return LabelInvalid
	}
	if !sig.DomainHasMX {
		return LabelLow
	}
	if sig.ProviderBlocking {
		return LabelUncertain
	}

	label := LabelMedium
	if sig.MatchesCompanyDomain && sig.PatternRank < topPatternRanks {
		label = LabelHigh
	}
	if sig.HasProfileSignal && (label == LabelMedium || label == LabelHigh) {
		label = LabelHigh
	}
	return label
}
