package verify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoppel/pgverify/internal/verify"
)

// fakeSource serves a fixed database → tables map.
type fakeSource struct {
	dbs       []string
	tables    map[string][]string
	tablesErr map[string]error

	mu          sync.Mutex
	tablesCalls []string
}

func (s *fakeSource) ListDatabases(context.Context) ([]string, error) {
	return s.dbs, nil
}

func (s *fakeSource) ListTables(_ context.Context, db string) ([]string, error) {
	s.mu.Lock()
	s.tablesCalls = append(s.tablesCalls, db)
	s.mu.Unlock()
	if err := s.tablesErr[db]; err != nil {
		return nil, err
	}
	return s.tables[db], nil
}

// fakeVerifier records globals/schema verification calls and fails on demand.
type fakeVerifier struct {
	globalsErr error
	schemaErr  map[string]error

	mu          sync.Mutex
	globalsRuns int
	schemaRuns  []string
}

func (v *fakeVerifier) VerifyGlobals(context.Context) error {
	v.mu.Lock()
	v.globalsRuns++
	v.mu.Unlock()
	return v.globalsErr
}

func (v *fakeVerifier) VerifySchema(_ context.Context, db string) error {
	v.mu.Lock()
	v.schemaRuns = append(v.schemaRuns, db)
	v.mu.Unlock()
	return v.schemaErr[db]
}

// twoDBSource is the recurring scenario: db a with a big and a small table
// (big discovered first — size order), db b with one table.
func twoDBSource() *fakeSource {
	return &fakeSource{
		dbs: []string{"a", "b"},
		tables: map[string][]string{
			"a": {"public.big", "public.small"},
			"b": {"public.t1"},
		},
	}
}

func newCoordinator(src *fakeSource, ver *fakeVerifier, dumper verify.Dumper, jobs int) *verify.Coordinator {
	return &verify.Coordinator{
		Source:           src,
		Verifier:         ver,
		Dumper:           dumper,
		Jobs:             jobs,
		PollInterval:     5 * time.Millisecond,
		ProgressInterval: time.Hour,
		Log:              quietLogger(),
	}
}

func TestCoordinator_AllSuccessIsSuccessVerdict(t *testing.T) {
	t.Parallel()
	src := twoDBSource()
	ver := &fakeVerifier{}
	dumper := newFakeDumper(nil)

	err := newCoordinator(src, ver, dumper, 2).Run(context.Background())
	require.NoError(t, err)

	// Globals once, schema once per database, every table dumped exactly once.
	assert.Equal(t, 1, ver.globalsRuns)
	assert.Equal(t, []string{"a", "b"}, ver.schemaRuns)
	assert.Equal(t, map[string]int{
		"a/public.big":   1,
		"a/public.small": 1,
		"b/public.t1":    1,
	}, dumper.dumped())
}

func TestCoordinator_BenignTableGoneKeepsSuccessVerdict(t *testing.T) {
	t.Parallel()
	src := twoDBSource()
	ver := &fakeVerifier{}
	dumper := newFakeDumper(map[string]dumpResult{
		"a/public.small": {code: 1, output: "pg_dump: error: No matching tables were found"},
	})

	err := newCoordinator(src, ver, dumper, 2).Run(context.Background())
	assert.NoError(t, err)
}

func TestCoordinator_UnitFailureIsFailureVerdict(t *testing.T) {
	t.Parallel()
	src := twoDBSource()
	ver := &fakeVerifier{}
	dumper := newFakeDumper(map[string]dumpResult{
		"b/public.t1": {code: 1, output: "pg_dump: error: invalid page in block 7"},
	})

	err := newCoordinator(src, ver, dumper, 2).Run(context.Background())
	require.Error(t, err)
}

func TestCoordinator_DeadWorkerWithQueuedWorkAborts(t *testing.T) {
	t.Parallel()
	// One worker and a failing first table: the rest of the queue can never
	// drain, so the liveness poll must abort the run.
	src := &fakeSource{
		dbs: []string{"a"},
		tables: map[string][]string{
			"a": {"public.bad", "public.t1", "public.t2", "public.t3"},
		},
	}
	ver := &fakeVerifier{}
	dumper := newFakeDumper(map[string]dumpResult{
		"a/public.bad": {code: 1, output: "pg_dump: error: could not read block"},
	})

	done := make(chan error, 1)
	go func() {
		done <- newCoordinator(src, ver, dumper, 1).Run(context.Background())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.NotErrorIs(t, err, verify.ErrVerificationFailed,
			"abort on worker death, not a drained-queue verdict")
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not abort on dead worker")
	}
}

func TestCoordinator_ZeroTablesIsFatal(t *testing.T) {
	t.Parallel()
	src := &fakeSource{dbs: []string{"a", "b"}, tables: map[string][]string{}}
	ver := &fakeVerifier{}
	dumper := newFakeDumper(nil)

	err := newCoordinator(src, ver, dumper, 2).Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, dumper.callCount(), "no dumps may run when nothing was discovered")
}

func TestCoordinator_GlobalsFailureAbortsBeforeAnyDump(t *testing.T) {
	t.Parallel()
	src := twoDBSource()
	ver := &fakeVerifier{globalsErr: errors.New("pg_dumpall -g exited with 1")}
	dumper := newFakeDumper(nil)

	err := newCoordinator(src, ver, dumper, 2).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, ver.schemaRuns, "no schema verification after globals failure")
	assert.Zero(t, dumper.callCount(), "no table dumps after globals failure")
}

func TestCoordinator_SchemaFailureStopsFollowingDatabases(t *testing.T) {
	t.Parallel()
	src := twoDBSource()
	ver := &fakeVerifier{schemaErr: map[string]error{
		"a": errors.New("pg_dump --schema-only a exited with 1"),
	}}
	dumper := newFakeDumper(nil)

	err := newCoordinator(src, ver, dumper, 2).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, ver.schemaRuns, "b must not be schema-verified")
	assert.Empty(t, src.tablesCalls, "no table discovery after the failing database")
	assert.Zero(t, dumper.dumped()["b/public.t1"], "b's tables must not be dumped")
}

func TestCoordinator_SingleDatabaseSkipsGlobals(t *testing.T) {
	t.Parallel()
	src := twoDBSource()
	ver := &fakeVerifier{}
	dumper := newFakeDumper(nil)

	coord := newCoordinator(src, ver, dumper, 2)
	coord.Database = "b"
	err := coord.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, ver.globalsRuns, "globals are skipped for a single-database run")
	assert.Equal(t, []string{"b"}, ver.schemaRuns)
	assert.Equal(t, map[string]int{"b/public.t1": 1}, dumper.dumped())
}

func TestCoordinator_UnknownRequestedDatabaseIsFatal(t *testing.T) {
	t.Parallel()
	src := twoDBSource()
	ver := &fakeVerifier{}
	dumper := newFakeDumper(nil)

	coord := newCoordinator(src, ver, dumper, 2)
	coord.Database = "nosuchdb"
	err := coord.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, ver.globalsRuns)
	assert.Zero(t, dumper.callCount())
}

func TestCoordinator_ContextCancellationAbortsDrain(t *testing.T) {
	t.Parallel()
	// Two tables for one worker: the second stays queued while the first
	// blocks, so the drain loop is the one to observe the cancellation.
	src := &fakeSource{
		dbs:    []string{"a"},
		tables: map[string][]string{"a": {"public.slow1", "public.slow2"}},
	}
	ver := &fakeVerifier{}

	ctx, cancel := context.WithCancel(context.Background())
	// The dump stays blocked past the cancellation so the queue cannot drain;
	// the deferred close lets the stuck worker finish once the test is done.
	release := make(chan struct{})
	defer close(release)
	dumper := &blockingDumper{release: release}

	coord := newCoordinator(src, ver, dumper, 1)
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not return after context cancellation")
	}
}

// blockingDumper holds every dump until release fires, then succeeds.
type blockingDumper struct {
	release <-chan struct{}
}

func (d *blockingDumper) DumpTable(context.Context, string, string) (int, string) {
	<-d.release
	return 0, ""
}
