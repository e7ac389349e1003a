package score

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	// ErrModelTimeout means the model service did not answer within
	// the configured deadline.
	ErrModelTimeout = errors.New("model service timed out")

	// ErrModelUnavailable means the model service could not be
	// reached or returned a non-success response.
	ErrModelUnavailable = errors.New("model service unavailable")
)

// ModelScorer scores transactions by calling the external risk model
// service. A failed call is a hard failure: the caller decides whether
// to reject the transaction, never this scorer.
type ModelScorer struct {
	url    string
	client *http.Client
}

// NewModelScorer creates a scorer for the configured model endpoint.
func NewModelScorer(cfg domain.ModelConfig) *ModelScorer {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &ModelScorer{
		url: cfg.URL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Score posts the transaction to the model service and normalizes the
// response. Dial failures are retried once; every other failure is
// returned immediately.
func (s *ModelScorer) Score(ctx context.Context, req *domain.AnalyzeRequest) (*domain.Assessment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding model request: %w", err)
	}

	assessment, err := s.call(ctx, body)
	if err != nil && isDialFailure(err) {
		assessment, err = s.call(ctx, body)
	}
	if err != nil {
		return nil, err
	}
	return assessment, nil
}

func (s *ModelScorer) call(ctx context.Context, body []byte) (*domain.Assessment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", ErrModelTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var assessment domain.Assessment
	if err := json.NewDecoder(resp.Body).Decode(&assessment); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrModelUnavailable, err)
	}

	if assessment.RiskScore < 0 {
		assessment.RiskScore = 0
	}
	if assessment.RiskScore > domain.MaxRiskScore {
		assessment.RiskScore = domain.MaxRiskScore
	}
	assessment.Source = domain.SourceModel

	return &assessment, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDialFailure(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
