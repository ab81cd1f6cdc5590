package watcher

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/pkg/ebus"
)

type watch struct {
	frame  time.Duration
	getter func(ctx context.Context) (any, error)
}

// Watcher periodically builds and emits snapshot events (the feed heartbeat
// among them), independent of the state of the loops it observes.
type Watcher struct {
	eBus *ebus.EBus
	subs []watch
	mx   sync.Mutex
}

func NewWatcher(eBus *ebus.EBus) *Watcher {
	return &Watcher{
		eBus: eBus,
	}
}

func (w *Watcher) EmitEvery(frame time.Duration, getter func(ctx context.Context) (any, error)) *Watcher {
	w.mx.Lock()
	defer w.mx.Unlock()

	w.subs = append(w.subs, watch{frame: frame, getter: getter})
	return w
}

func (w *Watcher) Run(ctx context.Context) error {
	w.mx.Lock()
	defer w.mx.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error)

	for i := range w.subs {
		go func(i int) {
			sub := w.subs[i]

			ticker := time.NewTicker(sub.frame)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					ins, err := sub.getter(ctx)
					if err != nil {
						select {
						case errs <- err:
						case <-ctx.Done():
						}
						return
					}
					_ = w.eBus.Emit(ctx, ins)
				}
			}
		}(i)
	}

	select {
	case err := <-errs:
		return fmt.Errorf("watcher: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogAny is a bus listener that logs any event with its fields, keyed by the
// event's type name.
func LogAny(log *zap.Logger) ebus.Listener {
	return func(ctx context.Context, event any) error {
		log.Info(reflect.TypeOf(event).Name(), zap.Any("event", event))
		return nil
	}
}
