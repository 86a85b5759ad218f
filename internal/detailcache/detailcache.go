// Package detailcache keeps activity detail pages that were already read, so repeated
// harvests of the same months skip opening them again.
package detailcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"runharvest/internal/assert"
	"runharvest/internal/chrono"
	"runharvest/internal/extract"
	"runharvest/internal/telemetry"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("runharvest/internal/detailcache")

const (
	report_get = "get"
	report_put = "put"
)

const DefaultTTL = 30 * 24 * time.Hour

// ErrMiss is returned by Lookup when the link is not cached or its entry expired.
var ErrMiss = errors.New("detail not cached")

type entry struct {
	Duration  string
	Pace      string
	ExpiresAt int64
}

type Cache struct {
	db    *badger.DB
	ttl   time.Duration
	clock chrono.TimeAPI
	tel   telemetry.API
}

type Options struct {
	// Path is the badger directory, empty keeps the cache in memory.
	Path string
	TTL  time.Duration
	// Clock defaults to chrono.StandardTime.
	Clock chrono.TimeAPI
}

func Open(opts Options, tel telemetry.API) (*Cache, error) {
	assert.NotNil(tel, "telemetry")

	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = chrono.StandardTime{}
	}
	return &Cache{
		db:    db,
		ttl:   ttl,
		clock: clock,
		tel:   telemetry.NewScopedAPI("detailcache", tel),
	}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Key normalizes link so equivalent urls share an entry.
func Key(link string) (string, error) {
	return purell.NormalizeURLString(
		link,
		purell.FlagsSafe|
			purell.FlagRemoveDotSegments|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
}

func (c *Cache) Lookup(ctx context.Context, link string) (extract.Detail, error) {
	_, span := tracer.Start(ctx, "lookup")
	defer span.End()

	key, err := Key(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create cache key")
		return extract.Detail{}, err
	}
	span.SetAttributes(attribute.String("cache_key", key))

	var cached entry
	err = c.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&cached)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return extract.Detail{}, ErrMiss
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cached detail")
		return extract.Detail{}, err
	}

	if c.clock.Now().Unix() >= cached.ExpiresAt {
		span.AddEvent("delete expired cache key", trace.WithAttributes(attribute.String("key", key)))
		err := c.db.Update(func(tx *badger.Txn) error {
			return tx.Delete([]byte(key))
		})
		if err != nil {
			span.RecordError(err)
		}
		return extract.Detail{}, ErrMiss
	}

	return extract.Detail{Duration: cached.Duration, Pace: cached.Pace}, nil
}

func (c *Cache) Store(ctx context.Context, link string, d extract.Detail) error {
	_, span := tracer.Start(ctx, "store")
	defer span.End()

	key, err := Key(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create cache key")
		return err
	}
	span.SetAttributes(attribute.String("cache_key", key))

	buf := bytes.NewBuffer(nil)
	err = gob.NewEncoder(buf).Encode(entry{
		Duration:  d.Duration,
		Pace:      d.Pace,
		ExpiresAt: c.clock.Now().Add(c.ttl).Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize detail")
		return err
	}

	err = c.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(key), buf.Bytes())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set badger item")
		return err
	}
	return nil
}

// Get satisfies extract.DetailCache, errors other than a miss are reported.
func (c *Cache) Get(ctx context.Context, link string) (extract.Detail, bool) {
	d, err := c.Lookup(ctx, link)
	if errors.Is(err, ErrMiss) {
		return extract.Detail{}, false
	}
	if err != nil {
		c.tel.ReportWarning(report_get, err, link)
		return extract.Detail{}, false
	}
	return d, true
}

func (c *Cache) Put(ctx context.Context, link string, d extract.Detail) {
	if err := c.Store(ctx, link, d); err != nil {
		c.tel.ReportWarning(report_put, err, link)
	}
}
