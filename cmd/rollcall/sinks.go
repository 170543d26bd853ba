package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/crimson-sun/rollcall/internal/config"
	"github.com/crimson-sun/rollcall/internal/metrics"
	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/sink"
	"github.com/crimson-sun/rollcall/internal/sink/async"
	"github.com/crimson-sun/rollcall/internal/sink/file"
	"github.com/crimson-sun/rollcall/internal/sink/kafka"
	"github.com/crimson-sun/rollcall/internal/sink/memory"
	"github.com/crimson-sun/rollcall/internal/sink/multi"
	"github.com/crimson-sun/rollcall/internal/sink/postgres"
	"github.com/crimson-sun/rollcall/internal/sink/redis"
	"github.com/crimson-sun/rollcall/internal/sink/stdout"
	"github.com/crimson-sun/rollcall/internal/sink/webhook"
)

// buildSinks opens every configured sink, wraps each in its own drop-on-full
// async buffer and fans out to them plus the in-memory ring.
func buildSinks(ctx context.Context, cfg config.Config, m *metrics.Metrics, recent *memory.Sink) (sink.Sink, error) {
	sinks := []sink.Sink{recent}
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	for _, name := range cfg.Sink.Names {
		s, err := openSink(ctx, name, cfg)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		sinks = append(sinks, async.New(s,
			async.WithBufferSize(cfg.Sink.BufferSize),
			async.WithDropOnFull(),
			async.WithOnError(func(err error) {
				m.IncSinkError(name)
				slog.Warn("sink write failed", "sink", name, "error", err)
			}),
			async.WithOnDrop(func(model.Event) { m.IncSinkDropped(name) }),
		))
	}
	return multi.New(sinks...), nil
}

func openSink(ctx context.Context, name string, c config.Config) (sink.Sink, error) {
	cfg := c.Sink
	switch name {
	case "stdout":
		return stdout.New(os.Stdout, cfg.Pretty), nil
	case "file":
		var opts []file.Option
		if cfg.FileMaxSize > 0 {
			opts = append(opts, file.WithMaxSize(cfg.FileMaxSize))
		}
		return file.New(cfg.FilePath, opts...)
	case "webhook":
		var opts []webhook.Option
		if cfg.WebhookToken != "" {
			opts = append(opts, webhook.WithHeaders(map[string]string{"Authorization": "Bearer " + cfg.WebhookToken}))
		}
		return webhook.New(cfg.WebhookURL, opts...), nil
	case "postgres":
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s := postgres.New(db, postgres.WithWebinarName(c.Session.Name))
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "redis":
		client, err := redis.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return redis.New(client, redis.WithMaxLen(cfg.RedisMaxLen)), nil
	case "kafka":
		s, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureTopic(ctx, 1, 1); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New("unknown sink")
	}
}
