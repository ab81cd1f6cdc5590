package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/internal/entity"
	"github.com/Hikita1337/crashfeed/internal/logring"
	"github.com/Hikita1337/crashfeed/internal/service/collector"
)

// ErrShutdownRequested stops the run group when /shutdown is called.
var ErrShutdownRequested = errors.New("shutdown requested over http")

type RoundSource interface {
	Snapshot() []entity.Round
}

type Starter interface {
	Start(req collector.Request) error
	Status() collector.Status
}

type FeedSource interface {
	Health() entity.FeedHealth
}

type AggregateSource interface {
	Snapshot() map[int64]int
	Rounds() int
}

// Server exposes the collected buffer and run controls. Feed and aggregate
// sources are nil when the live-feed mode is disabled.
type Server struct {
	web    *http.Server
	rounds RoundSource
	driver Starter
	feed   FeedSource
	agg    AggregateSource
	logs   *logring.Ring
	log    *zap.Logger

	shutdown chan struct{}
	once     sync.Once
}

func New(addr string, rounds RoundSource, driver Starter, feed FeedSource, agg AggregateSource,
	logs *logring.Ring, log *zap.Logger) *Server {
	serv := &Server{
		web: &http.Server{
			Addr: addr,
		},
		rounds:   rounds,
		driver:   driver,
		feed:     feed,
		agg:      agg,
		logs:     logs,
		log:      log,
		shutdown: make(chan struct{}),
	}
	serv.web.Handler = serv.router()
	return serv
}

func (s *Server) Run(ctx context.Context) error {
	closed := make(chan error, 1)

	go func() {
		closed <- s.web.ListenAndServe()
	}()

	select {
	case err := <-closed:
		return err
	case <-s.shutdown:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		_ = s.web.Shutdown(shutdownCtx)
		return ErrShutdownRequested
	case <-ctx.Done():
		_ = s.web.Shutdown(ctx)
		return ctx.Err()
	}
}

func (s *Server) requestShutdown() {
	s.once.Do(func() {
		close(s.shutdown)
	})
}
