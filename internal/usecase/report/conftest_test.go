package report

import (
	"context"
	"testing"

	"go.uber.org/zap"

	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
)

// --- Mocks ---

type mockLedger struct {
	readTotalsFn func(ctx context.Context) ([]domusage.Reading, error)
}

func (m *mockLedger) ReadTotals(ctx context.Context) ([]domusage.Reading, error) {
	if m.readTotalsFn != nil {
		return m.readTotalsFn(ctx)
	}
	return nil, nil
}

type mockSnapshots struct {
	replaceAllFn func(ctx context.Context, readings []domusage.Reading) error
	upsertFn     func(ctx context.Context, readings []domusage.Reading) error
	getAllFn     func(ctx context.Context) (map[string]domusage.Snapshot, error)
	calls        []string
}

func (m *mockSnapshots) ReplaceAll(ctx context.Context, readings []domusage.Reading) error {
	m.calls = append(m.calls, "ReplaceAll")
	if m.replaceAllFn != nil {
		return m.replaceAllFn(ctx, readings)
	}
	return nil
}

func (m *mockSnapshots) Upsert(ctx context.Context, readings []domusage.Reading) error {
	m.calls = append(m.calls, "Upsert")
	if m.upsertFn != nil {
		return m.upsertFn(ctx, readings)
	}
	return nil
}

func (m *mockSnapshots) GetAll(ctx context.Context) (map[string]domusage.Snapshot, error) {
	m.calls = append(m.calls, "GetAll")
	if m.getAllFn != nil {
		return m.getAllFn(ctx)
	}
	return map[string]domusage.Snapshot{}, nil
}

// fakeSnapshots is an in-memory store with the real replace/upsert
// semantics, for multi-cycle scenarios.
type fakeSnapshots struct {
	rows map[string]domusage.Snapshot
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{rows: map[string]domusage.Snapshot{}}
}

func (f *fakeSnapshots) ReplaceAll(_ context.Context, readings []domusage.Reading) error {
	f.rows = make(map[string]domusage.Snapshot, len(readings))
	for _, r := range readings {
		snap, err := domusage.NewSnapshot(0, r.TotalGiB())
		if err != nil {
			return err
		}
		f.rows[r.Principal()] = snap
	}
	return nil
}

func (f *fakeSnapshots) Upsert(_ context.Context, readings []domusage.Reading) error {
	for _, r := range readings {
		prev := f.rows[r.Principal()].CurrentGiB()
		snap, err := domusage.NewSnapshot(prev, r.TotalGiB())
		if err != nil {
			return err
		}
		f.rows[r.Principal()] = snap
	}
	return nil
}

func (f *fakeSnapshots) GetAll(_ context.Context) (map[string]domusage.Snapshot, error) {
	out := make(map[string]domusage.Snapshot, len(f.rows))
	for k, v := range f.rows {
		out[k] = v
	}
	return out, nil
}

// --- Helpers ---

func newTestService(t *testing.T, ledger LedgerReader, snapshots SnapshotStore) *Service {
	t.Helper()
	return New(ledger, snapshots, zap.NewNop())
}

func mustReading(t *testing.T, principal string, total float64) domusage.Reading {
	t.Helper()
	r, err := domusage.NewReading(principal, total)
	if err != nil {
		t.Fatalf("reading %s: %v", principal, err)
	}
	return r
}

func ledgerReturning(readings ...domusage.Reading) *mockLedger {
	return &mockLedger{
		readTotalsFn: func(context.Context) ([]domusage.Reading, error) {
			return readings, nil
		},
	}
}

func assertEntries(t *testing.T, got []domusage.Entry, want map[string]float64, order []string) {
	t.Helper()
	if len(got) != len(order) {
		t.Fatalf("expected %d entries, got %d", len(order), len(got))
	}
	for i, principal := range order {
		if got[i].Principal() != principal {
			t.Errorf("entry %d: expected principal %q, got %q", i, principal, got[i].Principal())
		}
		if got[i].ValueGiB() != want[principal] {
			t.Errorf("entry %d (%s): expected %f, got %f", i, principal, want[principal], got[i].ValueGiB())
		}
	}
}

func assertSnapshot(t *testing.T, rows map[string]domusage.Snapshot, principal string, previous, current float64) {
	t.Helper()
	snap, ok := rows[principal]
	if !ok {
		t.Fatalf("expected snapshot for %s", principal)
	}
	if snap.PreviousGiB() != previous || snap.CurrentGiB() != current {
		t.Errorf("%s: expected (%f, %f), got (%f, %f)",
			principal, previous, current, snap.PreviousGiB(), snap.CurrentGiB())
	}
}
