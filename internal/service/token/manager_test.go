package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/internal/entity"
)

func refreshServer(t *testing.T, calls *int, rotate bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotEmpty(t, body.RefreshToken)

		*calls++
		resp := map[string]string{
			"accessToken": fmt.Sprintf("access-%d", *calls),
		}
		if rotate {
			resp["refreshToken"] = fmt.Sprintf("refresh-%d", *calls)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestManager_CurrentUninitialized(t *testing.T) {
	m := NewManager("http://unused", nil, zap.NewNop())

	_, err := m.Current()
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestManager_RefreshWithoutSecret(t *testing.T) {
	m := NewManager("http://unused", nil, zap.NewNop())

	_, err := m.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestManager_RefreshAndRotation(t *testing.T) {
	calls := 0
	srv := refreshServer(t, &calls, true)
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), zap.NewNop())
	m.Seed(entity.Credential{RefreshToken: "seed-secret"})

	cred, err := m.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)

	// second refresh must use the rotated secret, not the seeded one
	cred, err = m.Refresh(context.Background(), "access-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", cred.AccessToken)
	assert.Equal(t, "refresh-2", cred.RefreshToken)
	assert.Equal(t, 2, calls)
}

func TestManager_RefreshKeepsSecretWhenNotRotated(t *testing.T) {
	calls := 0
	srv := refreshServer(t, &calls, false)
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), zap.NewNop())
	m.Seed(entity.Credential{RefreshToken: "seed-secret"})

	cred, err := m.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "seed-secret", cred.RefreshToken)
}

func TestManager_StaleShortCircuit(t *testing.T) {
	calls := 0
	srv := refreshServer(t, &calls, true)
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), zap.NewNop())
	m.Seed(entity.Credential{RefreshToken: "seed-secret"})

	first, err := m.Refresh(context.Background(), "")
	require.NoError(t, err)

	// a racer that observed the credential before the refresh gets the
	// fresh one back without a second network call
	again, err := m.Refresh(context.Background(), "older-token")
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, again.AccessToken)
	assert.Equal(t, 1, calls)
}

func TestManager_CurrentIsStableBetweenRefreshes(t *testing.T) {
	m := NewManager("http://unused", nil, zap.NewNop())
	m.Seed(entity.Credential{AccessToken: "static", RefreshToken: "secret"})

	for i := 0; i < 5; i++ {
		cred, err := m.Current()
		require.NoError(t, err)
		assert.Equal(t, "static", cred.AccessToken)
		assert.Equal(t, "secret", cred.RefreshToken)
	}
}

func TestManager_DefaultClientHasDeadline(t *testing.T) {
	m := NewManager("http://unused", nil, zap.NewNop())
	assert.NotZero(t, m.http.Timeout)
}

func TestManager_RefreshHungEndpointReturns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// drain the body so the server's background read can observe the
		// client disconnect and cancel the request context; otherwise
		// srv.Close blocks forever on this connection
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	m := NewManager(srv.URL, &http.Client{Timeout: 50 * time.Millisecond}, zap.NewNop())
	m.Seed(entity.Credential{AccessToken: "stale", RefreshToken: "seed-secret"})

	start := time.Now()
	_, err := m.Refresh(context.Background(), "stale")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	// the lock is free again: readers are not stuck behind the dead exchange
	cred, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, "stale", cred.AccessToken)
}

func TestManager_RefreshErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), zap.NewNop())
	m.Seed(entity.Credential{RefreshToken: "seed-secret"})

	_, err := m.Refresh(context.Background(), "")
	assert.Error(t, err)

	// the held credential is untouched by a failed refresh
	cred, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, "seed-secret", cred.RefreshToken)
	assert.Empty(t, cred.AccessToken)
}
