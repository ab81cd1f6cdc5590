package logring

import (
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/Hikita1337/crashfeed/internal/entity"
)

// Core is a zapcore.Core that tees every accepted log record, JSON-encoded,
// into a Ring. Tee it with the console core so /logs sees the same stream.
type Core struct {
	zapcore.LevelEnabler
	enc  zapcore.Encoder
	ring *Ring
}

func NewCore(ring *Ring, enab zapcore.LevelEnabler) *Core {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		NameKey:        "logger",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return &Core{
		LevelEnabler: enab,
		enc:          zapcore.NewJSONEncoder(cfg),
		ring:         ring,
	}
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := &Core{
		LevelEnabler: c.LevelEnabler,
		enc:          c.enc.Clone(),
		ring:         c.ring,
	}
	for i := range fields {
		fields[i].AddTo(clone.enc)
	}
	return clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	line := strings.TrimRight(buf.String(), "\n")
	buf.Free()

	c.ring.Append(entity.LogEntry{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Message: ent.Message,
		Line:    line,
	})
	return nil
}

func (c *Core) Sync() error { return nil }
