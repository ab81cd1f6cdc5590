package feed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/config"
	"github.com/Hikita1337/crashfeed/internal/entity"
	"github.com/Hikita1337/crashfeed/internal/event"
	"github.com/Hikita1337/crashfeed/pkg/ebus"
)

// Listener maintains the persistent push-channel session: connect with a
// fresh session token, subscribe, stream wager events into the aggregate,
// reconnect with growing backoff after any drop. The loop only ends with the
// surrounding context.
type Listener struct {
	cfg    config.Feed
	http   *http.Client
	agg    *Aggregate
	eBus   *ebus.EBus
	log    *zap.Logger
	health health

	// touched only from the Run goroutine
	attempts int
}

func NewListener(cfg config.Feed, agg *Aggregate, eBus *ebus.EBus, log *zap.Logger) *Listener {
	return &Listener{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.DialTimeout},
		agg:  agg,
		eBus: eBus,
		log:  log,
	}
}

func (l *Listener) Health() entity.FeedHealth {
	return l.health.snapshot()
}

func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return fmt.Errorf("feed: %w", ctx.Err())
		}

		l.attempts++
		wait := l.backoff(l.attempts)
		l.log.Warn("feed session ended",
			zap.Error(err),
			zap.Int("attempts", l.attempts),
			zap.Duration("reconnect_in", wait))

		if err := sleepCtx(ctx, wait); err != nil {
			return fmt.Errorf("feed: %w", err)
		}
	}
}

type wsMsg struct {
	mType int
	data  []byte
	err   error
}

func (l *Listener) session(ctx context.Context) error {
	tok, err := l.sessionToken(ctx)
	if err != nil {
		return fmt.Errorf("session token: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: l.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	now := time.Now()
	l.attempts = 0
	l.health.markConnected(now)
	l.emit(ctx, event.FeedConnected{At: now})

	conn.SetPongHandler(func(string) error {
		l.health.markPong(time.Now())
		return nil
	})

	if err := conn.WriteJSON(connectFrame{Connect: connectParams{Token: tok}, ID: 1}); err != nil {
		return l.dropped(ctx, fmt.Errorf("send connect: %w", err))
	}
	if err := sleepCtx(ctx, l.cfg.HandshakePause); err != nil {
		return err
	}
	if err := conn.WriteJSON(subscribeFrame{Subscribe: subscribeParams{Channel: l.cfg.Channel}, ID: 2}); err != nil {
		return l.dropped(ctx, fmt.Errorf("send subscribe: %w", err))
	}

	read := make(chan wsMsg, 1)
	go func() {
		defer close(read)
		for {
			mt, data, err := conn.ReadMessage()
			select {
			case read <- wsMsg{mType: mt, data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), deadline)
			return ctx.Err()

		case m, ok := <-read:
			if !ok {
				return l.dropped(ctx, errors.New("read channel closed"))
			}
			if m.err != nil {
				return l.dropped(ctx, fmt.Errorf("read: %w", m.err))
			}
			l.dispatch(ctx, conn, m.data)
		}
	}
}

// dropped records disconnect metadata before handing the error to the
// reconnect loop.
func (l *Listener) dropped(ctx context.Context, err error) error {
	code := 0
	reason := err.Error()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
		reason = closeErr.Text
	}

	l.health.markDisconnected(code, reason, time.Now())
	snap := l.health.snapshot()
	l.emit(ctx, event.FeedDisconnected{
		Code:            code,
		Reason:          reason,
		SessionDuration: snap.LastDisconnect.Duration,
	})

	return err
}

// dispatch classifies one inbound frame. Malformed frames are logged (raw
// bytes base64-encoded for offline analysis) and never end the session.
func (l *Listener) dispatch(ctx context.Context, conn *websocket.Conn, raw []byte) {
	if isKeepalive(raw) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("{}")); err != nil {
			l.log.Warn("keepalive reply failed", zap.Error(err))
		}
		return
	}

	var fr frame
	if err := json.Unmarshal(raw, &fr); err != nil {
		l.log.Warn("undecodable frame",
			zap.String("raw_b64", base64.StdEncoding.EncodeToString(raw)),
			zap.Error(err))
		return
	}

	switch {
	case fr.Error != nil:
		l.log.Warn("frame error",
			zap.Int("code", fr.Error.Code),
			zap.String("message", fr.Error.Message))
	case fr.Push != nil && fr.Push.Pub != nil:
		l.handlePublication(ctx, fr.Push)
	case fr.ID != 0:
		l.log.Debug("request acknowledged", zap.Int64("id", fr.ID))
	default:
		l.log.Debug("unhandled frame", zap.ByteString("frame", raw))
	}
}

func (l *Listener) handlePublication(ctx context.Context, p *push) {
	ev, err := decodePublication(p.Pub.Data)
	if err != nil {
		l.log.Warn("publication decode failed",
			zap.String("channel", p.Channel),
			zap.String("raw_b64", p.Pub.Data),
			zap.Error(err))
		return
	}
	if ev == nil || ev.Bet == nil || ev.Bet.Status != statusActive {
		return
	}

	count := l.agg.Add(ev.Bet.GameID, ev.Bet.User.ID)
	l.emit(ctx, event.WagerObserved{
		RoundID:      ev.Bet.GameID,
		UserID:       ev.Bet.User.ID,
		Participants: count,
	})
}

func (l *Listener) emit(ctx context.Context, ev any) {
	if err := l.eBus.Emit(ctx, ev); err != nil {
		l.log.Warn("event emit failed",
			zap.String("event", fmt.Sprintf("%T", ev)), zap.Error(err))
	}
}

type sessionTokenResponse struct {
	Token string `json:"token"`
}

func (l *Listener) sessionToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.TokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token status %d", resp.StatusCode)
	}

	var parsed sessionTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Token == "" {
		return "", errors.New("empty session token")
	}
	return parsed.Token, nil
}

func (l *Listener) backoff(attempts int) time.Duration {
	d := time.Duration(float64(l.cfg.BackoffBase) * math.Pow(l.cfg.BackoffGrowth, float64(attempts)))
	if d <= 0 || d > l.cfg.BackoffCap {
		return l.cfg.BackoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
