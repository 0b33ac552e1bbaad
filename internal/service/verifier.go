package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/idna"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/emailx"
	"github.com/octobees/leads-generator/miner/internal/entity"
)

const (
	mxLookupTimeout    = 3 * time.Second
	probeTimeout       = 5 * time.Second
	defaultHTTPTimeout = 5 * time.Second
	probeBaseURL       = "https://www.gravatar.com/avatar/"
)

// DNSResolver abstracts DNS lookups to simplify testing.
type DNSResolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// HTTPClient abstracts HTTP requests for validation purposes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Verifier scores email candidates from cheap signals: domain MX presence,
// the verification-blocking provider set, company-domain matching and an
// avatar-by-hash existence probe. It never performs an SMTP handshake.
//
// MX and probe results are memoized for the lifetime of the instance, both
// positive and negative, so one job run never repeats a lookup.
type Verifier struct {
	dnsResolver DNSResolver
	httpClient  HTTPClient

	mu         sync.Mutex
	mxCache    map[string]bool
	probeCache map[string]bool
}

// VerifierOption configures optional dependencies.
type VerifierOption func(*Verifier)

// WithDNSResolver overrides the default DNS resolver.
func WithDNSResolver(resolver DNSResolver) VerifierOption {
	return func(v *Verifier) {
		if resolver != nil {
			v.dnsResolver = resolver
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPClient) VerifierOption {
	return func(v *Verifier) {
		if client != nil {
			v.httpClient = client
		}
	}
}

// NewVerifier builds a verifier with sensible defaults.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		dnsResolver: systemDNSResolver{},
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		mxCache:     make(map[string]bool),
		probeCache:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ScoreCandidate labels one generated pattern against the company domain.
// The existence probe runs only when it could change the outcome.
func (v *Verifier) ScoreCandidate(ctx context.Context, candidate emailx.Pattern, companyDomain string) emailx.Label {
	return v.score(ctx, candidate.Email, companyDomain, candidate.Rank)
}

// ScoreEmail labels an arbitrary address. Addresses arriving from outside the
// generator have no pattern rank, so the company-domain rule treats them as
// top-ranked.
func (v *Verifier) ScoreEmail(ctx context.Context, email, companyDomain string) emailx.Label {
	return v.score(ctx, strings.ToLower(strings.TrimSpace(email)), companyDomain, 0)
}

func (v *Verifier) score(ctx context.Context, email, companyDomain string, rank int) emailx.Label {
	if !emailx.ValidSyntax(email) {
		return emailx.LabelInvalid
	}

	domain := email[strings.LastIndex(email, "@")+1:]
	sig := emailx.Signals{
		DomainHasMX:          v.HasMX(ctx, domain),
		ProviderBlocking:     emailx.IsBlockingProvider(email),
		MatchesCompanyDomain: companyDomain != "" && domain == companyDomain,
		PatternRank:          rank,
	}

	label := emailx.Score(email, sig)
	if label == emailx.LabelMedium || label == emailx.LabelHigh {
		sig.HasProfileSignal = v.ProfileExists(ctx, email)
		label = emailx.Score(email, sig)
	}
	return label
}

// FallbackVerdict produces a heuristic verdict for an address when the
// deliverability oracle is unavailable. The source marks it as a fallback so
// callers can tell it apart from oracle-confirmed results.
func (v *Verifier) FallbackVerdict(ctx context.Context, email, companyDomain string) dto.EmailVerdict {
	label := v.ScoreEmail(ctx, email, companyDomain)
	return dto.EmailVerdict{
		Email:      strings.ToLower(strings.TrimSpace(email)),
		Confidence: string(label),
		Source:     entity.EmailSourceFallback,
		Reason:     "oracle unavailable, heuristic signals only",
	}
}

// HasMX reports whether the domain has at least one MX record, consulting the
// cache first. Lookup failures count as "no MX" and are cached too.
func (v *Verifier) HasMX(ctx context.Context, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil || ascii == "" {
		return false
	}

	v.mu.Lock()
	cached, ok := v.mxCache[ascii]
	v.mu.Unlock()
	if ok {
		return cached
	}

	lookupCtx, cancel := context.WithTimeout(ctx, mxLookupTimeout)
	defer cancel()
	records, err := v.dnsResolver.LookupMX(lookupCtx, ascii)
	has := err == nil && len(records) > 0

	v.mu.Lock()
	v.mxCache[ascii] = has
	v.mu.Unlock()
	return has
}

// ProfileExists probes the avatar service for the email's hash. A 200 means a
// real person registered that address somewhere; 404 or any failure means no
// signal. Outcomes are cached per address.
func (v *Verifier) ProfileExists(ctx context.Context, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}

	v.mu.Lock()
	cached, ok := v.probeCache[email]
	v.mu.Unlock()
	if ok {
		return cached
	}

	exists := v.probe(ctx, email)

	v.mu.Lock()
	v.probeCache[email] = exists
	v.mu.Unlock()
	return exists
}

func (v *Verifier) probe(ctx context.Context, email string) bool {
	sum := md5.Sum([]byte(email))
	target := fmt.Sprintf("%s%s?d=404", probeBaseURL, hex.EncodeToString(sum[:]))

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type systemDNSResolver struct{}

func (systemDNSResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	return net.DefaultResolver.LookupMX(ctx, domain)
}
