package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/internal/entity"
	"github.com/Hikita1337/crashfeed/internal/event"
	"github.com/Hikita1337/crashfeed/internal/service/fetcher"
	"github.com/Hikita1337/crashfeed/pkg/ebus"
)

var (
	// ErrRunActive guards the buffer against two concurrent drivers.
	ErrRunActive    = errors.New("collection run already in progress")
	ErrBadRequest   = errors.New("invalid collection request")
	ErrNoCredential = errors.New("no refresh secret and no seeded credential")
)

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeBatched    Mode = "batched"
)

type Request struct {
	StartID      int64
	Count        int
	Mode         Mode
	BatchSize    int
	RefreshToken string
}

type RoundFetcher interface {
	Fetch(ctx context.Context, id int64) (*entity.Round, error)
}

type CredentialSeeder interface {
	Seed(cred entity.Credential)
	Current() (entity.Credential, error)
}

type Status struct {
	Running   bool   `json:"running"`
	RunID     string `json:"runId,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Target    int    `json:"target"`
	Collected int    `json:"collected"`
	LastID    int64  `json:"lastId"`
}

// Collector drives repeated fetch cycles against descending round ids until
// the buffer holds the target count. Single-flight: a second Start while a
// run is active is rejected, never interleaved.
type Collector struct {
	fetcher RoundFetcher
	buffer  *Buffer
	tokens  CredentialSeeder
	eBus    *ebus.EBus
	log     *zap.Logger

	pace       time.Duration
	batchSize  int
	batchPause time.Duration

	running atomic.Bool
	starts  chan Request

	mx      sync.RWMutex
	current Status
}

func New(f RoundFetcher, buf *Buffer, tokens CredentialSeeder, eBus *ebus.EBus, log *zap.Logger,
	pace time.Duration, batchSize int, batchPause time.Duration) *Collector {
	return &Collector{
		fetcher:    f,
		buffer:     buf,
		tokens:     tokens,
		eBus:       eBus,
		log:        log,
		pace:       pace,
		batchSize:  batchSize,
		batchPause: batchPause,
		starts:     make(chan Request, 1),
	}
}

// Start validates and enqueues a run. Synchronous rejection of bad
// parameters keeps ConfigurationError out of the retry loop.
func (c *Collector) Start(req Request) error {
	if req.StartID <= 0 {
		return fmt.Errorf("%w: startId must be positive", ErrBadRequest)
	}
	if req.Count <= 0 {
		return fmt.Errorf("%w: count must be positive", ErrBadRequest)
	}
	switch req.Mode {
	case "":
		req.Mode = ModeSequential
	case ModeSequential, ModeBatched:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrBadRequest, req.Mode)
	}
	if req.BatchSize <= 0 {
		req.BatchSize = c.batchSize
	}
	if req.RefreshToken == "" {
		if _, err := c.tokens.Current(); err != nil {
			return ErrNoCredential
		}
	}

	if !c.running.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	c.starts <- req
	return nil
}

func (c *Collector) Status() Status {
	c.mx.RLock()
	defer c.mx.RUnlock()

	st := c.current
	st.Running = c.running.Load()
	st.Collected = c.buffer.Len()
	st.LastID = c.buffer.LastID()
	return st
}

func (c *Collector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("collector: %w", ctx.Err())
		case req := <-c.starts:
			c.collect(ctx, req)
			c.running.Store(false)
		}
	}
}

func (c *Collector) collect(ctx context.Context, req Request) {
	runID := uuid.NewString()

	c.mx.Lock()
	c.current = Status{RunID: runID, Mode: string(req.Mode), Target: req.Count}
	c.mx.Unlock()

	if req.RefreshToken != "" {
		c.tokens.Seed(entity.Credential{RefreshToken: req.RefreshToken})
	}
	c.buffer.Reset()

	c.emit(ctx, event.RunStarted{
		RunID:   runID,
		StartID: req.StartID,
		Target:  req.Count,
		Mode:    string(req.Mode),
	})

	id := req.StartID
	for c.buffer.Len() < req.Count && ctx.Err() == nil && id > 0 {
		if req.Mode == ModeBatched {
			c.collectBatch(ctx, runID, id, req.BatchSize)
			id -= int64(req.BatchSize)
			if c.buffer.Len() < req.Count {
				_ = sleep(ctx, c.batchPause)
			}
			continue
		}

		c.collectOne(ctx, runID, id)
		id--
		if c.buffer.Len() < req.Count {
			_ = sleep(ctx, c.pace)
		}
	}

	c.emit(ctx, event.RunFinished{
		RunID:     runID,
		Collected: c.buffer.Len(),
		Aborted:   ctx.Err() != nil,
	})

	c.log.Info("collection run finished",
		zap.String("run_id", runID),
		zap.Int("collected", c.buffer.Len()),
		zap.Bool("aborted", ctx.Err() != nil))
}

func (c *Collector) collectOne(ctx context.Context, runID string, id int64) {
	round, err := c.fetcher.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, fetcher.ErrAttemptsExhausted) {
			c.emit(ctx, event.RoundSkipped{RunID: runID, ID: id})
		}
		return
	}

	collected := c.buffer.Append(*round)
	c.emit(ctx, event.RoundCollected{
		Round:     *round,
		RunID:     runID,
		Collected: collected,
	})
	c.log.Info("round collected",
		zap.String("run_id", runID),
		zap.Int64("id", round.ID),
		zap.Int("collected", collected))
}

// collectBatch fetches a descending window of ids in parallel. One id
// failing all its attempts does not block or invalidate its siblings.
func (c *Collector) collectBatch(ctx context.Context, runID string, startID int64, size int) {
	results := make([]*entity.Round, size)

	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		id := startID - int64(i)
		if id <= 0 {
			break
		}
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			round, err := c.fetcher.Fetch(ctx, id)
			if err != nil {
				if errors.Is(err, fetcher.ErrAttemptsExhausted) {
					c.emit(ctx, event.RoundSkipped{RunID: runID, ID: id})
				}
				return
			}
			results[i] = round
		}(i, id)
	}
	wg.Wait()

	for _, round := range results {
		if round == nil {
			continue
		}
		collected := c.buffer.Append(*round)
		c.emit(ctx, event.RoundCollected{
			Round:     *round,
			RunID:     runID,
			Collected: collected,
		})
	}

	c.log.Info("batch collected",
		zap.String("run_id", runID),
		zap.Int64("start_id", startID),
		zap.Int("collected", c.buffer.Len()))
}

// emit surfaces listener failures: a broken export publisher on the chain
// must leave a trace, not vanish.
func (c *Collector) emit(ctx context.Context, ev any) {
	if err := c.eBus.Emit(ctx, ev); err != nil {
		c.log.Warn("event emit failed",
			zap.String("event", fmt.Sprintf("%T", ev)), zap.Error(err))
	}
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
