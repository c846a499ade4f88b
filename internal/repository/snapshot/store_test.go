package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kailas-cloud/traffmeter/internal/domain"
	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func mustReading(t *testing.T, principal string, total float64) domusage.Reading {
	t.Helper()
	r, err := domusage.NewReading(principal, total)
	if err != nil {
		t.Fatalf("reading %s: %v", principal, err)
	}
	return r
}

func TestReplaceAll(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM usage_snapshots").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO usage_snapshots").
		WithArgs("alice", 10.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO usage_snapshots").
		WithArgs("bob", 5.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	readings := []domusage.Reading{
		mustReading(t, "alice", 10),
		mustReading(t, "bob", 5),
	}
	if err := s.ReplaceAll(context.Background(), readings); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceAll_RollsBackOnInsertFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM usage_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO usage_snapshots").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := s.ReplaceAll(context.Background(), []domusage.Reading{mustReading(t, "alice", 10)})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceAll_BeginFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	err := s.ReplaceAll(context.Background(), nil)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestUpsert(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO usage_snapshots").
		WithArgs("alice", 15.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Upsert(context.Background(), []domusage.Reading{mustReading(t, "alice", 15)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsert_Failure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO usage_snapshots").WillReturnError(sql.ErrConnDone)

	err := s.Upsert(context.Background(), []domusage.Reading{mustReading(t, "alice", 15)})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestGetAll(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"principal", "previous_usage", "current_usage"}).
		AddRow("alice", 10.0, 15.0).
		AddRow("bob", 5.0, 5.0)
	mock.ExpectQuery("SELECT principal").WillReturnRows(rows)

	snaps, err := s.GetAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps["alice"].PreviousGiB() != 10 || snaps["alice"].CurrentGiB() != 15 {
		t.Errorf("expected alice (10, 15), got (%f, %f)",
			snaps["alice"].PreviousGiB(), snaps["alice"].CurrentGiB())
	}
	if snaps["bob"].PreviousGiB() != 5 || snaps["bob"].CurrentGiB() != 5 {
		t.Errorf("expected bob (5, 5), got (%f, %f)",
			snaps["bob"].PreviousGiB(), snaps["bob"].CurrentGiB())
	}
}

func TestGetAll_EmptyTable(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT principal").
		WillReturnRows(sqlmock.NewRows([]string{"principal", "previous_usage", "current_usage"}))

	snaps, err := s.GetAll(context.Background())
	if err != nil {
		t.Fatalf("expected empty map, got error: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected empty map, got %d entries", len(snaps))
	}
}

func TestGetAll_Failure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT principal").WillReturnError(sql.ErrConnDone)

	_, err := s.GetAll(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS usage_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
