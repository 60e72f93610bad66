// Package publish writes periodic snapshots of a statistics file to Redis,
// one hash per file, so consumers without agent access can read the
// counters.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/infodancer/mailstatsd/internal/mailstats"
	"github.com/infodancer/mailstatsd/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Fields written besides the metric keys.
const (
	FieldInitTime    = "init_time"
	FieldPublishedAt = "published_at"
)

// Options configures a new Publisher.
type Options struct {
	Client    redis.UniversalClient
	Loader    metrics.RecordLoader
	Path      string
	KeyPrefix string
	Interval  time.Duration
	// TTL is applied to the hash after every write. Zero keeps it forever.
	TTL       time.Duration
	Collector metrics.Collector
	Logger    *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Publisher loads the statistics file on every tick and replaces the hash
// with its counters.
type Publisher struct {
	client    redis.UniversalClient
	loader    metrics.RecordLoader
	path      string
	key       string
	interval  time.Duration
	ttl       time.Duration
	collector metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Publisher.
func New(opts Options) *Publisher {
	if opts.Collector == nil {
		opts.Collector = &metrics.NoopCollector{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}

	key := filepath.Base(opts.Path)
	if opts.KeyPrefix != "" {
		key = opts.KeyPrefix + ":" + key
	}

	return &Publisher{
		client:    opts.Client,
		loader:    opts.Loader,
		path:      opts.Path,
		key:       key,
		interval:  opts.Interval,
		ttl:       opts.TTL,
		collector: opts.Collector,
		logger:    opts.Logger.With(slog.String("redis_key", key)),
		now:       opts.Now,
	}
}

// Key returns the Redis key snapshots are written to.
func (p *Publisher) Key() string {
	return p.key
}

// Fields flattens rec into hash fields. Mailer counters are suffixed with
// their slot index, e.g. "mailer.msgs.to.3".
func Fields(rec *mailstats.Record) map[string]any {
	fields := make(map[string]any, len(mailstats.Keys)*mailstats.MaxMailers+1)
	for _, key := range mailstats.Keys {
		if mailstats.FamilyOf(key) == mailstats.FamilyConnection {
			v, _ := rec.Value(key, 0)
			fields[key] = v
			continue
		}
		for i := 0; i < mailstats.MaxMailers; i++ {
			v, _ := rec.Value(key, i)
			fields[key+"."+strconv.Itoa(i)] = v
		}
	}
	fields[FieldInitTime] = rec.InitTime
	return fields
}

// Publish loads the file once and replaces the hash in a single
// transaction. On failure the previous hash is left to expire.
func (p *Publisher) Publish(ctx context.Context) error {
	rec, err := p.loader.Load(p.path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", p.path, err)
	}

	fields := Fields(&rec)
	fields[FieldPublishedAt] = p.now().Unix()

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.key)
		pipe.HSet(ctx, p.key, fields)
		if p.ttl > 0 {
			pipe.Expire(ctx, p.key, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", p.key, err)
	}
	return nil
}

// Run publishes immediately and then on every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("snapshot publisher started",
		slog.String("path", p.path),
		slog.Duration("interval", p.interval),
		slog.Duration("ttl", p.ttl),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.publishOnce(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("snapshot publisher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Publisher) publishOnce(ctx context.Context) {
	err := p.Publish(ctx)
	p.collector.SnapshotPublished(err == nil)
	switch {
	case err == nil:
		p.logger.Debug("snapshot published")
	case errors.Is(err, context.Canceled):
	default:
		p.logger.Warn("snapshot publish failed",
			slog.String("kind", mailstats.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
	}
}
