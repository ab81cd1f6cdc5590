package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/config"
	"github.com/Hikita1337/crashfeed/internal/entity"
)

// ErrAttemptsExhausted means the identifier was abandoned for this pass: the
// caller moves on to the next id, the run keeps going.
var ErrAttemptsExhausted = errors.New("fetch attempts exhausted")

var (
	errRateLimited   = errors.New("rate limited")
	errAuthExpired   = errors.New("auth expired")
	errEmptyEnvelope = errors.New("empty data envelope")
)

type TokenSource interface {
	Current() (entity.Credential, error)
	Refresh(ctx context.Context, stale string) (entity.Credential, error)
}

// Fetcher performs one bounded-retry fetch-and-normalize cycle per round id.
// Policy: 429 backs off exponentially and never touches the credential;
// only 401 triggers a refresh.
type Fetcher struct {
	http    *http.Client
	baseURL string
	scheme  string
	agents  []string
	tokens  TokenSource
	log     *zap.Logger

	attempts    int
	backoffBase time.Duration
	backoffCap  time.Duration
	retryDelay  time.Duration
	timeout     time.Duration
}

func New(cfg config.API, tokens TokenSource, log *zap.Logger) *Fetcher {
	return &Fetcher{
		http:        &http.Client{},
		baseURL:     cfg.BaseURL,
		scheme:      cfg.AuthScheme,
		agents:      cfg.UserAgents,
		tokens:      tokens,
		log:         log,
		attempts:    cfg.AttemptCeiling,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		retryDelay:  cfg.RetryDelay,
		timeout:     cfg.RequestTimeout,
	}
}

// Fetch retrieves and normalizes round id, retrying up to the attempt
// ceiling. The ceiling times the backoff cap bounds worst-case latency.
func (f *Fetcher) Fetch(ctx context.Context, id int64) (*entity.Round, error) {
	for attempt := 0; attempt < f.attempts; attempt++ {
		round, err := f.attempt(ctx, id, attempt)
		if err == nil {
			return round, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case errors.Is(err, errRateLimited):
			f.log.Warn("rate limited",
				zap.Int64("id", id), zap.Int("attempt", attempt))
			if err := sleep(ctx, f.backoff(attempt)); err != nil {
				return nil, err
			}

		case errors.Is(err, errAuthExpired):
			cred, _ := f.tokens.Current()
			if _, err := f.refresh(ctx, cred.AccessToken); err != nil {
				// failed refresh counts as a normal failed attempt
				f.log.Warn("credential refresh failed",
					zap.Int64("id", id), zap.Int("attempt", attempt), zap.Error(err))
				if err := sleep(ctx, f.retryDelay); err != nil {
					return nil, err
				}
			}

		default:
			f.log.Warn("fetch attempt failed",
				zap.Int64("id", id), zap.Int("attempt", attempt), zap.Error(err))
			if err := sleep(ctx, f.retryDelay); err != nil {
				return nil, err
			}
		}
	}

	f.log.Error("round abandoned", zap.Int64("id", id), zap.Int("attempts", f.attempts))

	return nil, fmt.Errorf("round %d: %w", id, ErrAttemptsExhausted)
}

// refresh bounds the token exchange like any other attempt; without the
// deadline a hung token endpoint would push Fetch past the attempt ceiling.
func (f *Fetcher) refresh(ctx context.Context, stale string) (entity.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	return f.tokens.Refresh(ctx, stale)
}

func (f *Fetcher) attempt(ctx context.Context, id int64, attempt int) (*entity.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%d", f.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if cred, err := f.tokens.Current(); err == nil {
		req.Header.Set("Authorization", f.scheme+" "+cred.AccessToken)
	}
	if len(f.agents) > 0 {
		req.Header.Set("User-Agent", f.agents[attempt%len(f.agents)])
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, errRateLimited
	case http.StatusUnauthorized:
		return nil, errAuthExpired
	default:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Data == nil {
		return nil, errEmptyEnvelope
	}

	return normalize(env.Data), nil
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.backoffBase << uint(attempt)
	if d <= 0 || d > f.backoffCap {
		return f.backoffCap
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
