package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/internal/entity"
)

var ErrUninitialized = errors.New("no credential available")

// Refresh holds the manager lock across the exchange, so the fallback client
// must have a deadline or a hung token endpoint stalls every Current reader.
const defaultRefreshTimeout = 10 * time.Second

// Manager owns the current upstream credential. Refresh swaps it atomically;
// readers always see either the old or the new value, never a torn one.
type Manager struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger

	mx   sync.Mutex
	cred entity.Credential
	has  bool
}

func NewManager(endpoint string, client *http.Client, log *zap.Logger) *Manager {
	if client == nil {
		client = &http.Client{Timeout: defaultRefreshTimeout}
	}
	return &Manager{
		endpoint: endpoint,
		http:     client,
		log:      log,
	}
}

// Seed installs a credential supplied from outside (startup config or a
// /start request carrying a refresh secret). Empty fields keep the held value.
func (m *Manager) Seed(cred entity.Credential) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if cred.AccessToken != "" {
		m.cred.AccessToken = cred.AccessToken
		m.has = true
	}
	if cred.RefreshToken != "" {
		m.cred.RefreshToken = cred.RefreshToken
		m.has = true
	}
}

func (m *Manager) Current() (entity.Credential, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if !m.has {
		return entity.Credential{}, ErrUninitialized
	}
	return m.cred, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges the held refresh secret for a new access token. stale is
// the access token the caller just failed with: when another refresh already
// replaced it, the held credential is returned without a network call.
func (m *Manager) Refresh(ctx context.Context, stale string) (entity.Credential, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.has && m.cred.AccessToken != "" && m.cred.AccessToken != stale {
		return m.cred, nil
	}
	if m.cred.RefreshToken == "" {
		return entity.Credential{}, ErrUninitialized
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: m.cred.RefreshToken})
	if err != nil {
		return entity.Credential{}, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return entity.Credential{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return entity.Credential{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.Credential{}, fmt.Errorf("refresh status %d", resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return entity.Credential{}, fmt.Errorf("decode refresh response: %w", err)
	}

	access := parsed.AccessToken
	if access == "" {
		access = parsed.Token
	}
	if access == "" {
		return entity.Credential{}, fmt.Errorf("refresh response has no access token")
	}

	m.cred.AccessToken = access
	rotated := parsed.RefreshToken != "" && parsed.RefreshToken != m.cred.RefreshToken
	if parsed.RefreshToken != "" {
		// some issuers rotate the refresh secret on every call; the old one
		// is dead the moment this response arrives
		m.cred.RefreshToken = parsed.RefreshToken
	}
	m.has = true

	m.log.Info("credential refreshed", zap.Bool("rotated", rotated))

	return m.cred, nil
}
