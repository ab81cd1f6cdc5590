package main

import (
	"context"
	"os"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Hikita1337/crashfeed/config"
	"github.com/Hikita1337/crashfeed/internal/entity"
	"github.com/Hikita1337/crashfeed/internal/event"
	"github.com/Hikita1337/crashfeed/internal/logring"
	"github.com/Hikita1337/crashfeed/internal/repository"
	"github.com/Hikita1337/crashfeed/internal/service/collector"
	"github.com/Hikita1337/crashfeed/internal/service/fakeapi"
	"github.com/Hikita1337/crashfeed/internal/service/feed"
	"github.com/Hikita1337/crashfeed/internal/service/fetcher"
	"github.com/Hikita1337/crashfeed/internal/service/interrupter"
	"github.com/Hikita1337/crashfeed/internal/service/token"
	"github.com/Hikita1337/crashfeed/internal/service/watcher"
	"github.com/Hikita1337/crashfeed/internal/service/web"
	"github.com/Hikita1337/crashfeed/pkg/app"
	"github.com/Hikita1337/crashfeed/pkg/ebus"
	"github.com/Hikita1337/crashfeed/pkg/utils"
)

func main() {
	cfg := utils.Must(config.Build())

	ring := logring.New(cfg.Log.RingEntries, cfg.Log.RingBytes)
	logger := buildLogger(cfg.Log.Level, ring)
	defer func() { _ = logger.Sync() }()

	eBus := ebus.New()

	tokens := token.NewManager(cfg.Token.RefreshURL, nil, logger.Named("token"))
	if cfg.Token.AccessToken != "" {
		tokens.Seed(entity.Credential{AccessToken: cfg.Token.AccessToken})
	}

	buf := collector.NewBuffer()
	fetch := fetcher.New(cfg.API, tokens, logger.Named("fetcher"))
	driver := collector.New(fetch, buf, tokens, eBus, logger.Named("collector"),
		cfg.Collector.Pace, cfg.Collector.BatchSize, cfg.Collector.BatchPause)

	application := app.NewApp().WithService(driver)

	var (
		feedSrc web.FeedSource
		aggSrc  web.AggregateSource
	)
	if cfg.Feed.Enabled {
		agg := feed.NewAggregate(cfg.Feed.AggregateCap)
		listener := feed.NewListener(cfg.Feed, agg, eBus, logger.Named("feed"))
		watch := watcher.NewWatcher(eBus).
			EmitEvery(cfg.Feed.Heartbeat, func(ctx context.Context) (any, error) {
				return event.FeedHeartbeat{
					Health:  listener.Health(),
					LogSize: ring.Len(),
				}, nil
			})

		application.WithService(listener).WithService(watch)
		feedSrc, aggSrc = listener, agg
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCl := utils.Must(sarama.NewClient(cfg.Kafka.Brokers, cfg.Kafka.SaramaConfig()))
		defer kafkaCl.Close()
		prod := utils.Must(sarama.NewSyncProducerFromClient(kafkaCl))
		defer prod.Close()

		rounds := repository.NewRound(prod, cfg.Kafka.RoundsTopic)
		eBus.Subscribe(event.RoundCollected{}, ebus.Typed(rounds.Publish))
	}

	logAll := watcher.LogAny(logger.Named("event"))
	eBus.
		Subscribe(event.RunStarted{}, logAll).
		Subscribe(event.RunFinished{}, logAll).
		Subscribe(event.RoundSkipped{}, logAll).
		Subscribe(event.FeedConnected{}, logAll).
		Subscribe(event.FeedDisconnected{}, logAll).
		Subscribe(event.FeedHeartbeat{}, logAll).
		Subscribe(event.RoundCollected{}, ebus.Typed(func(ctx context.Context, ev event.RoundCollected) error {
			logger.Info("progress",
				zap.Int("collected", ev.Collected),
				zap.Int64("last_id", ev.Round.ID))
			return nil
		})).
		Subscribe(event.WagerObserved{}, ebus.Typed(func(ctx context.Context, ev event.WagerObserved) error {
			logger.Debug("wager observed",
				zap.Int64("round_id", ev.RoundID),
				zap.Int64("user_id", ev.UserID),
				zap.Int("participants", ev.Participants))
			return nil
		}))

	webSrv := web.New(cfg.Web.Addr, buf, driver, feedSrc, aggSrc, ring, logger.Named("web"))
	application.WithService(webSrv)

	if cfg.Dev.FakeUpstreamAddr != "" {
		application.WithService(fakeapi.New(cfg.Dev.FakeUpstreamAddr, logger.Named("fakeapi")))
	}

	err := application.
		WithService(interrupter.Interrupter{}).
		Run(context.Background())

	logger.Fatal("stopped", zap.Error(err))
}

func buildLogger(level string, ring *logring.Ring) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	console := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)

	return zap.New(zapcore.NewTee(console, logring.NewCore(ring, lvl)))
}
