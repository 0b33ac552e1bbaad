package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/emailx"
	"github.com/octobees/leads-generator/miner/internal/entity"
)

const (
	oracleTimeout            = 30 * time.Second
	defaultOracleConcurrency = 10
)

type oracleRequest struct {
	ToEmail string `json:"to_email"`
}

type oracleResponse struct {
	Input       string `json:"input"`
	IsReachable string `json:"is_reachable"`
}

// Oracle asks an external deliverability checker about addresses and folds
// its reachability verdicts into confidence labels. When the checker is down
// or errors on an address, the heuristic verifier supplies a fallback verdict
// so callers always get an answer.
type Oracle struct {
	baseURL     string
	token       string
	concurrency int
	httpClient  HTTPClient
	verifier    *Verifier
}

// OracleOption configures optional dependencies.
type OracleOption func(*Oracle)

// WithOracleHTTPClient overrides the default HTTP client.
func WithOracleHTTPClient(client HTTPClient) OracleOption {
	return func(o *Oracle) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithOracleConcurrency caps how many addresses a batch checks in parallel.
func WithOracleConcurrency(n int) OracleOption {
	return func(o *Oracle) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// NewOracle builds an oracle client. The verifier is required for fallbacks.
func NewOracle(baseURL, token string, verifier *Verifier, opts ...OracleOption) *Oracle {
	o := &Oracle{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		concurrency: defaultOracleConcurrency,
		httpClient:  &http.Client{Timeout: oracleTimeout},
		verifier:    verifier,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Check validates one address. The returned verdict's source tells whether
// the oracle answered or the heuristic fallback did.
func (o *Oracle) Check(ctx context.Context, email, companyDomain string) dto.EmailVerdict {
	email = strings.ToLower(strings.TrimSpace(email))

	resp, err := o.check(ctx, email)
	if err != nil {
		return o.verifier.FallbackVerdict(ctx, email, companyDomain)
	}
	return o.verdictFrom(ctx, email, companyDomain, resp.IsReachable)
}

// CheckBatch validates addresses in parallel, bounded by the configured
// concurrency. Results come back in input order.
func (o *Oracle) CheckBatch(ctx context.Context, emails []string, companyDomain string) []dto.EmailVerdict {
	verdicts := make([]dto.EmailVerdict, len(emails))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, email := range emails {
		g.Go(func() error {
			verdicts[i] = o.Check(gctx, email, companyDomain)
			return nil
		})
	}
	g.Wait()
	return verdicts
}

func (o *Oracle) check(ctx context.Context, email string) (*oracleResponse, error) {
	if o.baseURL == "" {
		return nil, fmt.Errorf("oracle not configured")
	}

	payload, err := json.Marshal(oracleRequest{ToEmail: email})
	if err != nil {
		return nil, fmt.Errorf("marshal check request: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodPost, o.baseURL+"/v0/check_email", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.token != "" {
		req.Header.Set("Authorization", o.token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call oracle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read oracle response: %w", err)
	}
	var parsed oracleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}
	return &parsed, nil
}

func (o *Oracle) verdictFrom(ctx context.Context, email, companyDomain, reachable string) dto.EmailVerdict {
	verdict := dto.EmailVerdict{
		Email:  email,
		Source: entity.EmailSourceOracle,
		Reason: "oracle reachability: " + reachable,
	}

	switch reachable {
	case "safe":
		verdict.Confidence = string(emailx.LabelHigh)
		verdict.IsDeliverable = boolPtr(true)
	case "invalid":
		verdict.Confidence = string(emailx.LabelInvalid)
		verdict.IsDeliverable = boolPtr(false)
	case "risky":
		verdict.Confidence = string(emailx.LabelUncertain)
	default:
		// The oracle could not decide, so split the difference using the
		// heuristic signals.
		if label := o.verifier.ScoreEmail(ctx, email, companyDomain); label == emailx.LabelMedium || label == emailx.LabelHigh {
			verdict.Confidence = string(emailx.LabelMedium)
		} else {
			verdict.Confidence = string(emailx.LabelUncertain)
		}
	}
	return verdict
}

func boolPtr(b bool) *bool {
	return &b
}
