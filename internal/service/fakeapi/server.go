package fakeapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Server is a local stand-in for the upstream casino API, used for
// development runs without network access or real credentials. It serves
// synthetic round envelopes and rotates tokens on every refresh.
type Server struct {
	web *http.Server
	log *zap.Logger

	mx     sync.Mutex
	issued int
}

func New(addr string, log *zap.Logger) *Server {
	serv := &Server{
		web: &http.Server{
			Addr: addr,
		},
		log: log,
	}

	r := chi.NewRouter()
	r.Get("/games/{id}", serv.handleRound)
	r.Post("/auth/refresh", serv.handleRefresh)
	r.Post("/feed/token", serv.handleFeedToken)
	serv.web.Handler = r

	return serv
}

func (s *Server) Run(ctx context.Context) error {
	s.log.Info("fake upstream listening", zap.String("addr", s.web.Addr))

	closed := make(chan error, 1)

	go func() {
		closed <- s.web.ListenAndServe()
	}()

	select {
	case err := <-closed:
		return err
	case <-ctx.Done():
		_ = s.web.Shutdown(ctx)
		return ctx.Err()
	}
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	bets := make([]map[string]any, 0)
	for i := 0; i < mrand.Intn(5); i++ {
		items := []string{}
		if mrand.Intn(3) == 0 {
			items = append(items, "skin-"+strconv.Itoa(mrand.Intn(100)))
		}
		bets = append(bets, map[string]any{
			"user": map[string]any{
				"id":   mrand.Int63n(100000),
				"name": fmt.Sprintf("player%d", mrand.Intn(1000)),
			},
			"deposit": map[string]any{
				"amount": decimal.NewFromInt(int64(mrand.Intn(500))),
				"items":  items,
			},
			"withdraw": map[string]any{
				"amount": decimal.NewFromInt(int64(mrand.Intn(500))),
			},
			"coefficient": decimal.NewFromFloat(1 + mrand.Float64()*10).Round(2),
		})
	}

	writeJSON(w, map[string]any{
		"data": map[string]any{
			"id":        id,
			"crash":     decimal.NewFromFloat(1 + mrand.Float64()*20).Round(2),
			"salt":      randHex(16),
			"hashRound": randHex(32),
			"bets":      bets,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mx.Lock()
	s.issued++
	n := s.issued
	s.mx.Unlock()

	writeJSON(w, map[string]string{
		"accessToken":  fmt.Sprintf("access-%d", n),
		"refreshToken": fmt.Sprintf("refresh-%d", n),
	})
}

func (s *Server) handleFeedToken(w http.ResponseWriter, r *http.Request) {
	s.mx.Lock()
	s.issued++
	n := s.issued
	s.mx.Unlock()

	writeJSON(w, map[string]string{
		"token": fmt.Sprintf("session-%d", n),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	js, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(js)
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
