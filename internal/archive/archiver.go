// Package archive moves old trades out of the hot SQLite database and
// into gzipped NDJSON objects in S3, on a schedule, so the operational
// database stays small while trade history is kept indefinitely.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Uploader is the subset of the S3 client the archiver needs, so tests
// can substitute a fake without standing up a bucket.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver periodically moves trades older than maxAge from the trades
// table to gzipped NDJSON objects in S3, keyed by day.
type Archiver struct {
	db       *sqlx.DB
	uploader Uploader
	bucket   string
	prefix   string
	interval time.Duration
	maxAge   time.Duration
	log      *zap.Logger
}

// New creates a new Archiver. intervalHours controls how often a cycle
// runs; afterHours controls how old a trade must be before it is
// eligible for archival.
func New(db *sqlx.DB, uploader Uploader, bucket, prefix string, intervalHours, afterHours int, log *zap.Logger) *Archiver {
	return &Archiver{
		db:       db,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(afterHours) * time.Hour,
		log:      log,
	}
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	a.log.Info("trade archiver starting",
		zap.String("bucket", a.bucket), zap.Duration("interval", a.interval), zap.Duration("age", a.maxAge))

	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	cutoff := time.Now().Add(-a.maxAge)

	trades, err := a.queryTrades(ctx, cutoff)
	if err != nil {
		a.log.Error("trade archiver query failed", zap.Error(err))
		return
	}
	if len(trades) == 0 {
		return
	}

	batches := groupByDay(trades)
	for day, batch := range batches {
		if err := a.uploadBatch(ctx, day, batch); err != nil {
			a.log.Error("trade archiver upload failed", zap.String("day", day), zap.Error(err))
			return
		}
		if err := a.deleteBatch(ctx, batch); err != nil {
			a.log.Error("trade archiver delete failed", zap.String("day", day), zap.Error(err))
			return
		}
		a.log.Info("archived trades", zap.Int("count", len(batch)), zap.String("day", day))
	}
}

// tradeDoc is the archived representation of a trade row.
type tradeDoc struct {
	ID         string    `db:"id"         json:"id"`
	OrderID    string    `db:"order_id"   json:"order_id"`
	Symbol     string    `db:"symbol"     json:"symbol"`
	Side       string    `db:"side"       json:"side"`
	Amount     float64   `db:"amount"     json:"amount"`
	Price      float64   `db:"price"      json:"price"`
	Source     string    `db:"source"     json:"source"`
	ExecutedAt string    `db:"executed_at" json:"executed_at"`
	executedAt time.Time // parsed, used for day-bucketing only
}

func (a *Archiver) queryTrades(ctx context.Context, cutoff time.Time) ([]tradeDoc, error) {
	var rows []tradeDoc
	err := a.db.SelectContext(ctx, &rows, `
		SELECT id, order_id, symbol, side, amount, price, source, executed_at
		FROM trades WHERE executed_at < ? ORDER BY executed_at ASC
	`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	for i := range rows {
		t, err := time.Parse(time.RFC3339Nano, rows[i].ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("parse executed_at: %w", err)
		}
		rows[i].executedAt = t
	}
	return rows, nil
}

func groupByDay(trades []tradeDoc) map[string][]tradeDoc {
	batches := make(map[string][]tradeDoc)
	for _, t := range trades {
		day := t.executedAt.UTC().Format("2006/01/02")
		batches[day] = append(batches[day], t)
	}
	return batches
}

// uploadBatch gzips trades as NDJSON and puts them at prefix/trades/YYYY/MM/DD.jsonl.gz.
func (a *Archiver) uploadBatch(ctx context.Context, day string, trades []tradeDoc) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			gz.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	key := fmt.Sprintf("%s/trades/%s.jsonl.gz", a.prefix, day)
	_, err := a.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (a *Archiver) deleteBatch(ctx context.Context, trades []tradeDoc) error {
	ids := make([]string, len(trades))
	for i, t := range trades {
		ids[i] = t.ID
	}

	query, args, err := sqlx.In(`DELETE FROM trades WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	query = a.db.Rebind(query)
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete archived trades: %w", err)
	}
	return nil
}
