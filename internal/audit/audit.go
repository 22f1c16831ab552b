// Package audit provides a best-effort, optional Postgres sink for
// verdict events. It is write-only from this service's point of view:
// nothing is ever read back from it to seed the in-memory index, which
// always starts empty. It exists purely for compliance/ops visibility.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS verdict_log (
	id               BIGSERIAL PRIMARY KEY,
	video_id         TEXT NOT NULL,
	operation        TEXT NOT NULL,
	matched_video_id TEXT,
	similarity       DOUBLE PRECISION,
	is_duplicate     BOOLEAN,
	recorded_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Event is one recorded verdict or deletion.
type Event struct {
	VideoID        string
	Operation      string // "match_found" | "inserted" | "deleted"
	MatchedVideoID string // empty unless Operation == "match_found"
	Similarity     float64
	IsDuplicate    bool
}

// Sink is a best-effort Postgres sink. A nil *Sink (or one created with
// an empty connection string) is a valid no-op — Record silently does
// nothing, so the service degrades gracefully and keeps running
// in-memory-only when the database is unavailable.
type Sink struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against connStr and ensures the verdict_log
// table exists. An empty connStr yields a no-op sink.
func Connect(connStr string) (*Sink, error) {
	if connStr == "" {
		return &Sink{}, nil
	}

	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("audit: unable to connect: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: schema init failed: %w", err)
	}

	return &Sink{pool: pool}, nil
}

// Enabled reports whether this sink actually writes anywhere.
func (s *Sink) Enabled() bool {
	return s != nil && s.pool != nil
}

// Close releases the underlying connection pool, if any.
func (s *Sink) Close() {
	if s.Enabled() {
		s.pool.Close()
	}
}

// Record writes one verdict event. Callers treat this as fire-and-
// forget: a failure here never affects the HTTP response to the
// client, only gets logged by the caller.
func (s *Sink) Record(ctx context.Context, e Event) error {
	if !s.Enabled() {
		return nil
	}

	const insertSQL = `
		INSERT INTO verdict_log (video_id, operation, matched_video_id, similarity, is_duplicate)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5);
	`
	_, err := s.pool.Exec(ctx, insertSQL, e.VideoID, e.Operation, e.MatchedVideoID, e.Similarity, e.IsDuplicate)
	return err
}
