package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrEnrollmentInFlight is returned when the same Idempotency-Key is
// presented while the original enrollment is still being processed.
var ErrEnrollmentInFlight = errors.New("enrollment with this idempotency key is already in flight")

// enrollmentRecord is the JSON document stored per idempotency key.
type enrollmentRecord struct {
	State     string    `json:"state"` // "pending" or "done"
	SubjectID uuid.UUID `json:"subject_id,omitempty"`
}

// Idempotency deduplicates enrollment requests by client-supplied key,
// so a retried booking-form submission never creates a second subject.
// The reservation is a SetNX: first caller wins and runs the insert,
// replays get the stored subject ID back.
type Idempotency struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewIdempotency creates the enrollment deduplicator. ttl bounds how
// long a key is remembered; zero defaults to 24 hours.
func NewIdempotency(client *Client, logger *zap.Logger, ttl time.Duration) *Idempotency {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{client: client, logger: logger, ttl: ttl}
}

func idemKey(key string) string {
	return fmt.Sprintf("cadence:enroll:%s", key)
}

// Reserve claims the key for the current request. It returns
// (uuid.Nil, false) when the caller holds the reservation and should
// proceed with the enrollment, (id, true) when a completed enrollment
// already exists for the key, and ErrEnrollmentInFlight when another
// request holds a pending reservation.
func (i *Idempotency) Reserve(ctx context.Context, key string) (uuid.UUID, bool, error) {
	pending, err := json.Marshal(enrollmentRecord{State: "pending"})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("marshal idempotency record: %w", err)
	}

	ok, err := i.client.rdb.SetNX(ctx, idemKey(key), pending, i.ttl).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return uuid.Nil, false, nil
	}

	raw, err := i.client.rdb.Get(ctx, idemKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Reservation expired between SetNX and Get; treat as in
			// flight and let the client retry.
			return uuid.Nil, false, ErrEnrollmentInFlight
		}
		return uuid.Nil, false, fmt.Errorf("load idempotency record: %w", err)
	}

	var rec enrollmentRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return uuid.Nil, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	if rec.State != "done" {
		return uuid.Nil, false, ErrEnrollmentInFlight
	}

	i.logger.Debug("enrollment replayed from idempotency cache",
		zap.String("key", key),
		zap.String("subject_id", rec.SubjectID.String()),
	)
	return rec.SubjectID, true, nil
}

// Complete records the enrolled subject under the key so replays can
// return it.
func (i *Idempotency) Complete(ctx context.Context, key string, subjectID uuid.UUID) error {
	done, err := json.Marshal(enrollmentRecord{State: "done", SubjectID: subjectID})
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := i.client.rdb.Set(ctx, idemKey(key), done, i.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a pending reservation after a failed enrollment so the
// client can retry with the same key.
func (i *Idempotency) Release(ctx context.Context, key string) error {
	if err := i.client.rdb.Del(ctx, idemKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
