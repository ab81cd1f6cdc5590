package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/config"
	"github.com/Hikita1337/crashfeed/internal/entity"
	"github.com/Hikita1337/crashfeed/internal/service/token"
)

type stubTokens struct {
	mx        sync.Mutex
	cred      entity.Credential
	refreshes int
}

func (s *stubTokens) Current() (entity.Credential, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.cred, nil
}

func (s *stubTokens) Refresh(ctx context.Context, stale string) (entity.Credential, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.refreshes++
	s.cred.AccessToken = fmt.Sprintf("fresh-%d", s.refreshes)
	return s.cred, nil
}

func testConfig(baseURL string) config.API {
	return config.API{
		BaseURL:        baseURL,
		AuthScheme:     "JWT",
		UserAgents:     []string{"agent-a", "agent-b"},
		AttemptCeiling: 12,
		BackoffBase:    time.Millisecond,
		BackoffCap:     time.Millisecond * 8,
		RetryDelay:     time.Millisecond,
		RequestTimeout: time.Second,
	}
}

func roundBody(id int64, itemCounts ...int) map[string]any {
	bets := make([]map[string]any, 0, len(itemCounts))
	for i, n := range itemCounts {
		items := make([]string, n)
		for j := range items {
			items[j] = "item"
		}
		bets = append(bets, map[string]any{
			"user":        map[string]any{"id": i + 1, "name": fmt.Sprintf("u%d", i+1)},
			"deposit":     map[string]any{"amount": "10.5", "items": items},
			"withdraw":    map[string]any{"amount": "21"},
			"coefficient": "2.0",
		})
	}
	return map[string]any{
		"data": map[string]any{
			"id":        id,
			"crash":     "1.57",
			"salt":      "s",
			"hashRound": "h",
			"bets":      bets,
		},
	}
}

func TestFetch_Normalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JWT tok", r.Header.Get("Authorization"))
		assert.Equal(t, "agent-a", r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(roundBody(42, 2, 0))
	}))
	defer srv.Close()

	tokens := &stubTokens{cred: entity.Credential{AccessToken: "tok"}}
	f := New(testConfig(srv.URL), tokens, zap.NewNop())

	round, err := f.Fetch(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), round.ID)
	assert.Equal(t, "1.57", round.CrashPoint.String())
	assert.Equal(t, "s", round.Salt)
	assert.Equal(t, "h", round.HashRound)
	require.Len(t, round.Wagers, 2)

	assert.Equal(t, 1, round.Wagers[0].UsedItems)
	assert.Equal(t, 0, round.Wagers[1].UsedItems)
	assert.Equal(t, "u1", round.Wagers[0].UserName)
	assert.Equal(t, "10.5", round.Wagers[0].DepositAmount.String())
	assert.Equal(t, "21", round.Wagers[0].WithdrawAmount.String())
	assert.Nil(t, round.Wagers[0].AutoCoefficient)
}

func TestFetch_AuthRefreshOnce(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") != "JWT fresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(roundBody(7))
	}))
	defer srv.Close()

	tokens := &stubTokens{cred: entity.Credential{AccessToken: "expired"}}
	f := New(testConfig(srv.URL), tokens, zap.NewNop())

	round, err := f.Fetch(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), round.ID)
	assert.Equal(t, 1, tokens.refreshes)
	assert.Equal(t, 2, requests)
}

func TestFetch_RateLimitedBacksOffWithoutRefresh(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(roundBody(9))
	}))
	defer srv.Close()

	tokens := &stubTokens{cred: entity.Credential{AccessToken: "tok"}}
	f := New(testConfig(srv.URL), tokens, zap.NewNop())

	round, err := f.Fetch(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), round.ID)
	assert.Equal(t, 0, tokens.refreshes)
	assert.Equal(t, 3, requests)
}

func TestFetch_EmptyEnvelopeRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			_, _ = w.Write([]byte(`{"data": null}`))
			return
		}
		_ = json.NewEncoder(w).Encode(roundBody(5))
	}))
	defer srv.Close()

	tokens := &stubTokens{cred: entity.Credential{AccessToken: "tok"}}
	f := New(testConfig(srv.URL), tokens, zap.NewNop())

	round, err := f.Fetch(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), round.ID)
	assert.Equal(t, 2, requests)
}

func TestFetch_AttemptsExhausted(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tokens := &stubTokens{cred: entity.Credential{AccessToken: "tok"}}
	f := New(testConfig(srv.URL), tokens, zap.NewNop())

	round, err := f.Fetch(context.Background(), 3)
	assert.Nil(t, round)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 12, requests)
}

func TestFetch_HungTokenEndpointStaysBounded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	// never answers; only a deadline ends the exchange
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// drain the body so the server's background read can observe the
		// client disconnect and cancel the request context; otherwise
		// tokenSrv.Close blocks forever on these connections
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer tokenSrv.Close()

	tokens := token.NewManager(tokenSrv.URL, nil, zap.NewNop())
	tokens.Seed(entity.Credential{AccessToken: "expired", RefreshToken: "secret"})

	cfg := testConfig(upstream.URL)
	cfg.AttemptCeiling = 3
	cfg.RequestTimeout = time.Millisecond * 50
	f := New(cfg, tokens, zap.NewNop())

	start := time.Now()
	_, err := f.Fetch(context.Background(), 11)

	// each refresh is cut off at the request timeout, so the ceiling still
	// bounds the whole call
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Less(t, time.Since(start), time.Second)

	cred, err := tokens.Current()
	require.NoError(t, err)
	assert.Equal(t, "expired", cred.AccessToken)
}

func TestFetch_ContextCancelStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tokens := &stubTokens{cred: entity.Credential{AccessToken: "tok"}}
	cfg := testConfig(srv.URL)
	cfg.RetryDelay = time.Minute
	f := New(cfg, tokens, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	_, err := f.Fetch(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoff_Capped(t *testing.T) {
	f := New(testConfig("http://unused"), &stubTokens{}, zap.NewNop())

	assert.Equal(t, time.Millisecond, f.backoff(0))
	assert.Equal(t, time.Millisecond*4, f.backoff(2))
	assert.Equal(t, time.Millisecond*8, f.backoff(3))
	assert.Equal(t, time.Millisecond*8, f.backoff(10))
	assert.Equal(t, time.Millisecond*8, f.backoff(80))
}
