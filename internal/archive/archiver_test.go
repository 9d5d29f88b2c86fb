package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/latencyx/core/internal/persist"
)

type fakeUploader struct {
	puts     []*s3.PutObjectInput
	lastBody []byte
}

func (f *fakeUploader) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	params.Body = nil
	f.puts = append(f.puts, &s3.PutObjectInput{Bucket: params.Bucket, Key: params.Key})
	f.lastBody = body
	return &s3.PutObjectOutput{}, nil
}

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	store, err := persist.NewStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store.DB()
}

func insertAgedTrade(t *testing.T, db *sqlx.DB, id string, executedAt time.Time) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO trades (id, order_id, symbol, side, amount, price, source, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, id+"-order", "BTC/USD", "buy", 1.0, 50000.0, "binance", executedAt.UTC().Format(time.RFC3339Nano))
	require.NoError(t, err)
}

func TestCycleArchivesOnlyTradesOlderThanCutoff(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()
	insertAgedTrade(t, db, "old-1", now.Add(-48*time.Hour))
	insertAgedTrade(t, db, "fresh-1", now)

	up := &fakeUploader{}
	a := New(db, up, "test-bucket", "engine", 1, 24, zap.NewNop())
	a.cycle(context.Background())

	require.Len(t, up.puts, 1)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM trades`))
	assert.Equal(t, 1, count, "only the archived trade should be deleted")

	var remaining string
	require.NoError(t, db.Get(&remaining, `SELECT id FROM trades`))
	assert.Equal(t, "fresh-1", remaining)
}

func TestCycleUploadsGzippedNDJSON(t *testing.T) {
	db := newTestDB(t)
	insertAgedTrade(t, db, "old-1", time.Now().UTC().Add(-48*time.Hour))

	up := &fakeUploader{}
	a := New(db, up, "test-bucket", "engine", 1, 24, zap.NewNop())
	a.cycle(context.Background())

	require.Len(t, up.puts, 1)
	assert.Contains(t, *up.puts[0].Key, "engine/trades/")

	gz, err := gzip.NewReader(bytes.NewReader(up.lastBody))
	require.NoError(t, err)
	var doc tradeDoc
	require.NoError(t, json.NewDecoder(gz).Decode(&doc))
	assert.Equal(t, "old-1", doc.ID)
}

func TestCycleNoOpWhenNothingEligible(t *testing.T) {
	db := newTestDB(t)
	insertAgedTrade(t, db, "fresh-1", time.Now().UTC())

	up := &fakeUploader{}
	a := New(db, up, "test-bucket", "engine", 1, 24, zap.NewNop())
	a.cycle(context.Background())

	assert.Empty(t, up.puts)
}
