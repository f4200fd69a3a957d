package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadLetter is a webhook application that failed after signature
// verification. Kept durable so status updates are not silently lost;
// replay is an operator action, not a background job.
type DeadLetter struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Body       json.RawMessage `json:"body"`
	Reason     string          `json:"reason"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// DeadLetterStore records failed webhook applications.
type DeadLetterStore interface {
	Record(ctx context.Context, event string, body json.RawMessage, reason string) error
}

// MemoryDeadLetters is an in-memory dead-letter store.
type MemoryDeadLetters struct {
	mu      sync.Mutex
	letters []DeadLetter
}

// NewMemoryDeadLetters creates an empty in-memory dead-letter store.
func NewMemoryDeadLetters() *MemoryDeadLetters {
	return &MemoryDeadLetters{}
}

// Record appends a dead letter.
func (s *MemoryDeadLetters) Record(ctx context.Context, event string, body json.RawMessage, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, DeadLetter{
		ID:         uuid.NewString(),
		Event:      event,
		Body:       body,
		Reason:     reason,
		ReceivedAt: time.Now().UTC(),
	})
	return nil
}

// All returns the recorded dead letters. Test helper.
func (s *MemoryDeadLetters) All() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadLetter(nil), s.letters...)
}

// PostgresDeadLetters persists dead letters in Postgres.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS webhook_dead_letters (
//	    id          uuid PRIMARY KEY,
//	    event       text NOT NULL,
//	    body        jsonb NOT NULL,
//	    reason      text NOT NULL,
//	    received_at timestamptz NOT NULL DEFAULT now()
//	);
type PostgresDeadLetters struct {
	pool *pgxpool.Pool
}

// NewPostgresDeadLetters creates a dead-letter store backed by the pool.
func NewPostgresDeadLetters(pool *pgxpool.Pool) *PostgresDeadLetters {
	return &PostgresDeadLetters{pool: pool}
}

// Record inserts a dead letter.
func (s *PostgresDeadLetters) Record(ctx context.Context, event string, body json.RawMessage, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_dead_letters (id, event, body, reason, received_at)
		 VALUES ($1, $2, $3, $4, now())`,
		uuid.NewString(), event, body, reason)
	if err != nil {
		return fmt.Errorf("recording webhook dead letter: %w", err)
	}
	return nil
}

var (
	_ DeadLetterStore = (*MemoryDeadLetters)(nil)
	_ DeadLetterStore = (*PostgresDeadLetters)(nil)
)
