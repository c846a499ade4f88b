package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/traffmeter/internal/db"
	"github.com/kailas-cloud/traffmeter/internal/domain"
	domprov "github.com/kailas-cloud/traffmeter/internal/domain/provision"
)

const keyPrefix = "traffmeter:session:"

// store is the consumer interface for session persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Store persists in-flight wizard sessions keyed by chat ID. Sessions carry
// a TTL so abandoned wizards expire on their own.
type Store struct {
	store store
	ttl   time.Duration
}

// New creates a session store.
func New(s store, ttl time.Duration) *Store {
	return &Store{store: s, ttl: ttl}
}

// Get loads the wizard session for a chat. Returns domain.ErrNotFound if no
// wizard is in flight.
func (s *Store) Get(ctx context.Context, chatID int64) (domprov.Session, error) {
	data, err := s.store.Get(ctx, sessionKey(chatID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domprov.Session{}, domain.ErrNotFound
		}
		return domprov.Session{}, fmt.Errorf("get session %d: %w", chatID, err)
	}

	sess, err := sessionFromJSON(data)
	if err != nil {
		return domprov.Session{}, fmt.Errorf("decode session %d: %w", chatID, err)
	}
	return sess, nil
}

// Put stores the wizard session for a chat, refreshing its TTL.
func (s *Store) Put(ctx context.Context, chatID int64, sess domprov.Session) error {
	data, err := sessionToJSON(sess)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", chatID, err)
	}
	if err := s.store.SetWithTTL(ctx, sessionKey(chatID), data, s.ttl); err != nil {
		return fmt.Errorf("put session %d: %w", chatID, err)
	}
	return nil
}

// Delete removes the wizard session for a chat. Deleting a missing session
// is not an error.
func (s *Store) Delete(ctx context.Context, chatID int64) error {
	if err := s.store.Del(ctx, sessionKey(chatID)); err != nil {
		return fmt.Errorf("delete session %d: %w", chatID, err)
	}
	return nil
}

// Ping checks the backing store's availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping session store: %w", err)
	}
	return nil
}

func sessionKey(chatID int64) string {
	return keyPrefix + strconv.FormatInt(chatID, 10)
}
