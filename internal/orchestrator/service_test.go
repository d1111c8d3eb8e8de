package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/rota/internal/breakqueue"
	"github.com/dyluth/rota/internal/config"
	"github.com/dyluth/rota/internal/directory"
	"github.com/dyluth/rota/internal/topology"
	"github.com/dyluth/rota/pkg/rotation"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDate = "2026-06-01"

// staticDirectory serves a fixed roster.
type staticDirectory []directory.Person

func (d staticDirectory) ListActive(ctx context.Context) ([]directory.Person, error) {
	return d, nil
}

func testConfig(t *testing.T) *config.RotaConfig {
	t.Helper()
	retries := 2
	cfg := &config.RotaConfig{
		Version: "1.0",
		Storage: &config.StorageConfig{MaxRetries: &retries, RetryInterval: time.Millisecond},
		Sandbox: &config.SandboxConfig{TTL: 10 * time.Minute},
		Topology: config.TopologyConfig{Sections: []topology.SectionSpec{
			{
				ID:      "A",
				BreakTo: "B",
				Positions: []topology.PositionSpec{
					{ID: "A.1", Label: "Tower", Next: "A.2", Entry: true},
					{ID: "A.2", Label: "Deep End", Next: "A.3", MinAge: 16},
					{ID: "A.3", Label: "Slide"},
				},
			},
			{
				ID: "B",
				Positions: []topology.PositionSpec{
					{ID: "B.1", Label: "Rest Chair", Next: "B.2", Rest: true, Entry: true},
					{ID: "B.2", Label: "Gate", Next: "B.1"},
				},
			},
		}},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func testRoster() staticDirectory {
	adult := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	return staticDirectory{
		{ID: "G1", Name: "Ann", DateOfBirth: adult},
		{ID: "G2", Name: "Bo", DateOfBirth: adult},
		{ID: "G3", Name: "Cy", DateOfBirth: adult},
		{ID: "K1", Name: "Kid", DateOfBirth: time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

// setupTestService creates a service backed by miniredis.
func setupTestService(t *testing.T) (*Service, *rotation.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := rotation.NewClient(&redis.Options{Addr: mr.Addr()}, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cfg := testConfig(t)
	topo, err := cfg.BuildTopology()
	require.NoError(t, err)

	svc := NewService(client, topo, testRoster(), cfg)
	frame := 0
	svc.newFrameID = func() string {
		frame++
		return fmt.Sprintf("frame-%d", frame)
	}
	return svc, client, mr
}

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", testDate+" "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBoard(t *testing.T) {
	svc, _, _ := setupTestService(t)
	state, err := svc.Board(context.Background(), rotation.CanonicalKey(testDate))
	require.NoError(t, err)

	assert.Equal(t, int64(0), state.Rev)
	assert.Equal(t, []string{"A.1", "A.2", "A.3", "B.1", "B.2"}, state.Assignments.Positions())
	assert.Empty(t, state.Assignments.Occupied())
}

func TestPopulate(t *testing.T) {
	ctx := context.Background()
	key := rotation.CanonicalKey(testDate)

	t.Run("writes a full frame", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Enqueue(ctx, key, "G2", "A")
		require.NoError(t, err)

		out, err := svc.Populate(ctx, key, rotation.Assignment{"A.1": "G1", "A.2": "G2"}, at("10:30"))
		require.NoError(t, err)

		assert.Equal(t, int64(2), out.State.Rev)
		assert.Equal(t, "G2", out.State.Assignments["A.2"])
		assert.Empty(t, out.State.Queue, "newly seated personnel leave the queue")
		assert.Equal(t, "10:30:00.000", out.FrameTimestamp)
		assert.Equal(t, "frame-1", out.FrameID)
		assert.Contains(t, out.State.SeatUpdatedAt, "A.1")
		assert.NotContains(t, out.State.SeatUpdatedAt, "B.1")

		view, err := svc.FrameBoard(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, out.State.Assignments, view.Assignment)
		assert.Equal(t, 5, view.Rows)
	})

	t.Run("flags minimum age conflicts", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		out, err := svc.Populate(ctx, key, rotation.Assignment{"A.2": "K1", "A.3": "X9"}, at("10:30"))
		require.NoError(t, err)

		assert.ElementsMatch(t, []rotation.Conflict{
			{PositionID: "A.2", PersonnelID: "K1", Reason: rotation.ReasonMinimumAge},
			{PositionID: "A.3", PersonnelID: "X9", Reason: rotation.ReasonNotAllowed},
		}, out.Conflicts)
		assert.Equal(t, "K1", out.State.Assignments["A.2"], "conflicts never unseat")
	})

	t.Run("rejects unknown positions", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Populate(ctx, key, rotation.Assignment{"Z.1": "G1"}, at("10:30"))
		assert.True(t, rotation.IsValidation(err))
	})

	t.Run("rejects double booking", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Populate(ctx, key, rotation.Assignment{"A.1": "G1", "B.1": "G1"}, at("10:30"))
		assert.True(t, rotation.IsValidation(err))

		state, err := svc.Board(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(0), state.Rev)
	})
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	key := rotation.CanonicalKey(testDate)

	t.Run("permissive moves occupants along the ring", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Populate(ctx, key, rotation.Assignment{"A.1": "G1"}, at("10:30"))
		require.NoError(t, err)

		out, err := svc.Rotate(ctx, key, at("10:30"))
		require.NoError(t, err)

		assert.Equal(t, rotation.PeriodPermissive, out.Period)
		assert.Equal(t, "G1", out.State.Assignments["A.2"])
		assert.Equal(t, "", out.State.Assignments["A.1"])
		assert.Equal(t, 1, out.State.Tick)
		assert.Equal(t, "10:30:00.001", out.FrameTimestamp, "same wall clock still sorts after the previous frame")

		view, err := svc.FrameBoard(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "G1", view.Assignment["A.2"])
		assert.Equal(t, "", view.Assignment["A.1"])
		assert.Equal(t, "10:30:00.001", view.Timestamp)
		assert.Equal(t, 10, view.Rows, "earlier frames are retained")
	})

	t.Run("restricted clears non-rest positions into the break queue", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Populate(ctx, key, rotation.Assignment{"A.1": "G1", "B.2": "G2"}, at("10:40"))
		require.NoError(t, err)

		out, err := svc.Rotate(ctx, key, at("10:47"))
		require.NoError(t, err)

		assert.Equal(t, rotation.PeriodRestricted, out.Period)
		assert.Equal(t, "", out.State.Assignments["A.2"])
		assert.Equal(t, "G2", out.State.Assignments["B.1"], "rest position keeps its occupant")
		require.Len(t, out.Cleared, 1)
		assert.Equal(t, "G1", out.Cleared[0].PersonnelID)
		assert.Equal(t, []rotation.QueueEntry{{PersonnelID: "G1", ReturnToSection: "B", EnteredTick: 1}}, out.State.Queue)
	})

	t.Run("terminus occupants return through the entry position", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Populate(ctx, key, rotation.Assignment{"A.3": "G3"}, at("09:00"))
		require.NoError(t, err)

		out, err := svc.Rotate(ctx, key, at("09:15"))
		require.NoError(t, err)

		assert.Len(t, out.RotatedOff, 1)
		assert.Equal(t, "G3", out.State.Assignments["B.1"], "refilled from section B's queue")
		assert.Empty(t, out.State.Queue)
	})
}

func TestSeat(t *testing.T) {
	ctx := context.Background()
	key := rotation.CanonicalKey(testDate)

	t.Run("guarded write increments revision", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		state, err := svc.Seat(ctx, key, SeatRequest{Position: "A.1", Personnel: "G1", ExpectedRev: rotation.Rev(0)}, at("10:00"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), state.Rev)

		state, err = svc.Seat(ctx, key, SeatRequest{Position: "B.2", Personnel: "G1", ExpectedRev: rotation.Rev(1)}, at("10:01"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), state.Rev)
		assert.Equal(t, "", state.Assignments["A.1"], "seating moves the person")
		assert.Equal(t, "G1", state.Assignments["B.2"])
	})

	t.Run("stale revision is rejected and state is unchanged", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		for i, pos := range []string{"A.1", "A.2", "A.3", "B.1"} {
			_, err := svc.Seat(ctx, key, SeatRequest{Position: pos, Personnel: fmt.Sprintf("G%d", i)}, at("10:00"))
			require.NoError(t, err)
		}

		_, err := svc.Seat(ctx, key, SeatRequest{Position: "B.2", Personnel: "G3", ExpectedRev: rotation.Rev(3)}, at("10:00"))
		require.Error(t, err)
		assert.True(t, rotation.IsOptimisticConflict(err))

		state, err := svc.Board(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(4), state.Rev)
		assert.Equal(t, "", state.Assignments["B.2"])
	})

	t.Run("seating removes from queue and unseating clears", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Enqueue(ctx, key, "G2", "B")
		require.NoError(t, err)

		state, err := svc.Seat(ctx, key, SeatRequest{Position: "B.1", Personnel: "G2"}, at("10:00"))
		require.NoError(t, err)
		assert.Empty(t, state.Queue)
		assert.Equal(t, "G2", state.Assignments["B.1"])

		state, err = svc.Seat(ctx, key, SeatRequest{Position: "B.1"}, at("10:05"))
		require.NoError(t, err)
		assert.Equal(t, "", state.Assignments["B.1"])
		assert.Empty(t, state.Queue, "unseated personnel go off duty")
	})

	t.Run("unknown position", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Seat(ctx, key, SeatRequest{Position: "Q.1", Personnel: "G1"}, at("10:00"))
		assert.True(t, rotation.IsValidation(err))
	})
}

func TestQueueOperations(t *testing.T) {
	ctx := context.Background()
	key := rotation.CanonicalKey(testDate)

	t.Run("enqueue is idempotent across sections", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		state, err := svc.Enqueue(ctx, key, "G2", "B")
		require.NoError(t, err)
		assert.Equal(t, int64(1), state.Rev)

		state, err = svc.Enqueue(ctx, key, "G2", "A")
		require.NoError(t, err)
		assert.Equal(t, int64(1), state.Rev, "no-op is not written")
		assert.Equal(t, []rotation.QueueEntry{{PersonnelID: "G2", ReturnToSection: "B"}}, state.Queue)
	})

	t.Run("seated personnel are not queued", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Seat(ctx, key, SeatRequest{Position: "A.1", Personnel: "G1"}, at("10:00"))
		require.NoError(t, err)

		state, err := svc.Enqueue(ctx, key, "G1", "A")
		require.NoError(t, err)
		assert.Empty(t, state.Queue)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		_, err := svc.Enqueue(ctx, key, "G1", "Z")
		assert.True(t, rotation.IsValidation(err))
		_, err = svc.Enqueue(ctx, key, "  ", "A")
		assert.True(t, rotation.IsValidation(err))
		_, err = svc.MoveQueued(ctx, key, "G1", breakqueue.Location{Section: "A"}, breakqueue.Location{Section: "B"})
		assert.True(t, rotation.IsValidation(err), "nobody is queued at A[0]")
	})

	t.Run("move remove clear", func(t *testing.T) {
		svc, _, _ := setupTestService(t)
		for _, id := range []string{"G1", "G2", "G3"} {
			_, err := svc.Enqueue(ctx, key, id, "A")
			require.NoError(t, err)
		}

		state, err := svc.MoveQueued(ctx, key, "G3", breakqueue.Location{Section: "A", Index: 2}, breakqueue.Location{Section: "B", Index: 0})
		require.NoError(t, err)
		assert.Equal(t, []rotation.QueueEntry{
			{PersonnelID: "G1", ReturnToSection: "A"},
			{PersonnelID: "G2", ReturnToSection: "A"},
			{PersonnelID: "G3", ReturnToSection: "B"},
		}, state.Queue)

		state, err = svc.RemoveQueued(ctx, key, "G1")
		require.NoError(t, err)
		assert.Len(t, state.Queue, 2)

		state, err = svc.ClearQueue(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, state.Queue)
		assert.Empty(t, state.Breaks)
	})
}

// conflictOnceStore fails the first guarded Put with an optimistic conflict.
type conflictOnceStore struct {
	rotation.Store
	failed bool
}

func (s *conflictOnceStore) Put(ctx context.Context, key rotation.Key, next *rotation.State, opts rotation.PutOptions) (*rotation.State, error) {
	if opts.ExpectedRev != nil && !s.failed {
		s.failed = true
		return nil, fmt.Errorf("injected: %w", rotation.ErrOptimisticConflict)
	}
	return s.Store.Put(ctx, key, next, opts)
}

// failingFrameStore fails the next `failures` frame writes before they reach storage.
type failingFrameStore struct {
	rotation.Store
	failures int
	calls    int
}

func (s *failingFrameStore) PutFrame(ctx context.Context, key rotation.Key, next *rotation.State, opts rotation.FrameOptions) (*rotation.FrameWrite, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("injected: %w", rotation.ErrStorageUnavailable)
	}
	return s.Store.PutFrame(ctx, key, next, opts)
}

func TestFrameWrites(t *testing.T) {
	ctx := context.Background()
	key := rotation.CanonicalKey(testDate)

	t.Run("failed frame write leaves the tick untouched", func(t *testing.T) {
		svc, client, _ := setupTestService(t)
		_, err := svc.Populate(ctx, key, rotation.Assignment{"A.1": "G1"}, at("10:30"))
		require.NoError(t, err)

		flaky := &failingFrameStore{Store: client, failures: 100}
		svc.store = flaky

		_, err = svc.Rotate(ctx, key, at("10:30"))
		require.Error(t, err)
		assert.True(t, rotation.IsStorageUnavailable(err))
		assert.Greater(t, flaky.calls, 1, "frame writes are retried")

		state, err := svc.Board(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 0, state.Tick)
		assert.Equal(t, "G1", state.Assignments["A.1"])

		view, err := svc.FrameBoard(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 5, view.Rows)

		svc.store = client
		out, err := svc.Rotate(ctx, key, at("10:31"))
		require.NoError(t, err)
		assert.Equal(t, 1, out.State.Tick)
		assert.Equal(t, "G1", out.State.Assignments["A.2"])
	})

	t.Run("retried frame write ticks exactly once", func(t *testing.T) {
		svc, client, _ := setupTestService(t)
		_, err := svc.Populate(ctx, key, rotation.Assignment{"A.1": "G1"}, at("10:30"))
		require.NoError(t, err)

		flaky := &failingFrameStore{Store: client, failures: 1}
		svc.store = flaky

		out, err := svc.Rotate(ctx, key, at("10:31"))
		require.NoError(t, err)
		assert.Equal(t, 2, flaky.calls)
		assert.Equal(t, 1, out.State.Tick)
		assert.Equal(t, "G1", out.State.Assignments["A.2"])
		assert.Equal(t, "", out.State.Assignments["A.3"])

		state, err := svc.Board(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 1, state.Tick)
		assert.Equal(t, int64(2), state.Rev)

		view, err := svc.FrameBoard(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 10, view.Rows)
		assert.Equal(t, "G1", view.Assignment["A.2"])
	})

	t.Run("storage outage during rotate writes nothing", func(t *testing.T) {
		svc, _, mr := setupTestService(t)
		_, err := svc.Populate(ctx, key, rotation.Assignment{"A.1": "G1"}, at("10:30"))
		require.NoError(t, err)
		indexBefore, err := mr.ZMembers(rotation.FrameIndexKey(key))
		require.NoError(t, err)

		mr.SetError("ERR injected failure")
		_, err = svc.Rotate(ctx, key, at("10:31"))
		mr.SetError("")
		assert.True(t, rotation.IsStorageUnavailable(err))

		indexAfter, err := mr.ZMembers(rotation.FrameIndexKey(key))
		require.NoError(t, err)
		assert.Equal(t, indexBefore, indexAfter)

		state, err := svc.Board(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 0, state.Tick)
		assert.Equal(t, int64(1), state.Rev)
	})
}

func TestRetries(t *testing.T) {
	ctx := context.Background()
	key := rotation.CanonicalKey(testDate)

	t.Run("queue writes retry on conflict", func(t *testing.T) {
		svc, client, _ := setupTestService(t)
		flaky := &conflictOnceStore{Store: client}
		svc.store = flaky

		state, err := svc.Enqueue(ctx, key, "G1", "A")
		require.NoError(t, err)
		assert.True(t, flaky.failed)
		assert.Len(t, state.Queue, 1)
	})

	t.Run("explicit revision conflicts are surfaced", func(t *testing.T) {
		svc, client, _ := setupTestService(t)
		svc.store = &conflictOnceStore{Store: client}

		_, err := svc.Seat(ctx, key, SeatRequest{Position: "A.1", Personnel: "G1", ExpectedRev: rotation.Rev(0)}, at("10:00"))
		assert.True(t, rotation.IsOptimisticConflict(err))
	})

	t.Run("storage unavailable after bounded retries", func(t *testing.T) {
		svc, _, mr := setupTestService(t)
		mr.SetError("ERR injected failure")

		_, err := svc.Board(ctx, key)
		require.Error(t, err)
		assert.True(t, rotation.IsStorageUnavailable(err))
		assert.Equal(t, "StorageUnavailable", rotation.KindName(err))
		assert.NotContains(t, rotation.UserMessage(err), "injected")
	})
}

func TestSandboxScope(t *testing.T) {
	ctx := context.Background()
	svc, _, mr := setupTestService(t)
	sandbox := rotation.SandboxKey(testDate, "sandbox-ab12cd34")
	canonical := rotation.CanonicalKey(testDate)

	_, err := svc.Populate(ctx, sandbox, rotation.Assignment{"A.1": "G1"}, at("10:00"))
	require.NoError(t, err)
	_, err = svc.Populate(ctx, canonical, rotation.Assignment{"A.1": "G2"}, at("10:00"))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, mr.TTL(rotation.StateKey(sandbox)))
	assert.Equal(t, 10*time.Minute, mr.TTL(rotation.FrameIndexKey(sandbox)))
	assert.Equal(t, time.Duration(0), mr.TTL(rotation.StateKey(canonical)))

	state, err := svc.Board(ctx, sandbox)
	require.NoError(t, err)
	assert.Equal(t, "G1", state.Assignments["A.1"])
	assert.NotZero(t, state.ExpiresAtMs)

	mr.FastForward(11 * time.Minute)

	state, err = svc.Board(ctx, sandbox)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Rev, "expired sandbox starts over")

	state, err = svc.Board(ctx, canonical)
	require.NoError(t, err)
	assert.Equal(t, "G2", state.Assignments["A.1"])
}
