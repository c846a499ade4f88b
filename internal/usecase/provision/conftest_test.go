package provision

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/traffmeter/internal/domain"
	domprov "github.com/kailas-cloud/traffmeter/internal/domain/provision"
)

// --- Mocks ---

// mockSessions is an in-memory session store with optional error injection.
type mockSessions struct {
	rows     map[int64]domprov.Session
	getFn    func(ctx context.Context, chatID int64) (domprov.Session, error)
	putFn    func(ctx context.Context, chatID int64, sess domprov.Session) error
	deleteFn func(ctx context.Context, chatID int64) error
}

func newMockSessions() *mockSessions {
	return &mockSessions{rows: map[int64]domprov.Session{}}
}

func (m *mockSessions) Get(ctx context.Context, chatID int64) (domprov.Session, error) {
	if m.getFn != nil {
		return m.getFn(ctx, chatID)
	}
	sess, ok := m.rows[chatID]
	if !ok {
		return domprov.Session{}, domain.ErrNotFound
	}
	return sess, nil
}

func (m *mockSessions) Put(ctx context.Context, chatID int64, sess domprov.Session) error {
	if m.putFn != nil {
		return m.putFn(ctx, chatID, sess)
	}
	m.rows[chatID] = sess
	return nil
}

func (m *mockSessions) Delete(ctx context.Context, chatID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, chatID)
	}
	delete(m.rows, chatID)
	return nil
}

type createCall struct {
	username     string
	dataLimitGiB float64
	validityDays int
}

type mockCreator struct {
	createFn func(ctx context.Context, username string, dataLimitGiB float64, validityDays int) error
	calls    []createCall
}

func (m *mockCreator) CreatePrincipal(ctx context.Context, username string, dataLimitGiB float64, validityDays int) error {
	m.calls = append(m.calls, createCall{username, dataLimitGiB, validityDays})
	if m.createFn != nil {
		return m.createFn(ctx, username, dataLimitGiB, validityDays)
	}
	return nil
}

// --- Helpers ---

func newTestService(sessions Sessions, creator AccountCreator) *Service {
	return New(sessions, creator, zap.NewNop())
}

func mustAdvance(t *testing.T, svc *Service, chatID int64, input string) (string, bool) {
	t.Helper()
	reply, done, err := svc.Advance(context.Background(), chatID, input)
	if err != nil {
		t.Fatalf("advance %q: %v", input, err)
	}
	return reply, done
}
