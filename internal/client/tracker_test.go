package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

type failingStorage struct {
	loadErr error
	saveErr error
	saves   int
}

func (f *failingStorage) Load() (*State, error) { return nil, f.loadErr }

func (f *failingStorage) Save(*State) error {
	f.saves++
	return f.saveErr
}

func newTestTracker(t *testing.T, clock *fakeClock, storage Storage) *Tracker {
	t.Helper()
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return NewTracker(TrackerOptions{Storage: storage, Clock: clock})
}

func TestTracker_ProcessedKeys(t *testing.T) {
	tr := newTestTracker(t, newFakeClock(), nil)

	if tr.IsProcessed("k1") {
		t.Fatal("fresh tracker should not know k1")
	}
	tr.MarkProcessed("k1")
	if !tr.IsProcessed("k1") {
		t.Fatal("k1 should be processed")
	}
}

func TestTracker_ProcessedCap(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock, nil)

	for i := 0; i < maxProcessed+5; i++ {
		tr.MarkProcessed(fmt.Sprintf("k%03d", i))
		clock.Advance(time.Millisecond)
	}
	if len(tr.state.Processed) != maxProcessed {
		t.Fatalf("processed=%d want %d", len(tr.state.Processed), maxProcessed)
	}
	for i := 0; i < 5; i++ {
		if tr.IsProcessed(fmt.Sprintf("k%03d", i)) {
			t.Fatalf("oldest key k%03d should have been trimmed", i)
		}
	}
	if !tr.IsProcessed(fmt.Sprintf("k%03d", maxProcessed+4)) {
		t.Fatal("newest key missing")
	}
}

func TestTracker_ProcessedCapKeepsNewestOnTie(t *testing.T) {
	tr := newTestTracker(t, newFakeClock(), nil)
	for i := 0; i < maxProcessed; i++ {
		tr.MarkProcessed(fmt.Sprintf("b%03d", i))
	}
	tr.MarkProcessed("a-newest")
	if !tr.IsProcessed("a-newest") {
		t.Fatal("key just marked must survive the trim")
	}
}

func TestTracker_PrunesAtLoad(t *testing.T) {
	clock := newFakeClock()
	now := clock.Now()
	store := NewMemoryStorage()
	_ = store.Save(&State{
		Processed: map[string]int64{
			"fresh": now.Add(-time.Hour).UnixMilli(),
			"stale": now.Add(-25 * time.Hour).UnixMilli(),
		},
		Recent: map[string]int64{
			"u1_1_5": now.Add(-time.Hour).UnixMilli(),
			"u1_1_6": now.Add(-4 * time.Hour).UnixMilli(),
		},
		Locks: map[string]int64{
			"u1_1": now.Add(-time.Minute).UnixMilli(),
		},
	})

	tr := newTestTracker(t, clock, store)
	if !tr.IsProcessed("fresh") || tr.IsProcessed("stale") {
		t.Fatalf("processed after prune: %v", tr.state.Processed)
	}
	if _, ok := tr.state.Recent["u1_1_5"]; !ok {
		t.Fatal("1h-old marker should survive load")
	}
	if _, ok := tr.state.Recent["u1_1_6"]; ok {
		t.Fatal("4h-old marker should be pruned")
	}
	if len(tr.state.Locks) != 0 {
		t.Fatalf("expired lock should be pruned: %v", tr.state.Locks)
	}
}

func TestTracker_ExactDuplicateWindow(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock, nil)

	tr.Record("u1", 7, 5)
	if !tr.IsExactDuplicate("u1", 7, 5) {
		t.Fatal("same quantity should be a duplicate")
	}
	if tr.IsExactDuplicate("u1", 7, 6) || tr.IsExactDuplicate("u2", 7, 5) || tr.IsExactDuplicate("u1", 8, 5) {
		t.Fatal("different user, part or quantity is not a duplicate")
	}

	clock.Advance(DefaultDuplicateWindow - time.Second)
	if !tr.IsExactDuplicate("u1", 7, 5) {
		t.Fatal("still inside the window")
	}
	clock.Advance(time.Second)
	if tr.IsExactDuplicate("u1", 7, 5) {
		t.Fatal("window should have expired")
	}
}

func TestTracker_LockCountdownAndAutoRelease(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var ticks []int
	tr := NewTracker(TrackerOptions{
		Clock: clock,
		OnCountdown: func(user string, part uint, left int) {
			if user != "u1" || part != 3 {
				return
			}
			mu.Lock()
			ticks = append(ticks, left)
			mu.Unlock()
		},
	})

	if !tr.Lock("u1", 3) {
		t.Fatal("first lock should succeed")
	}
	if tr.Lock("u1", 3) {
		t.Fatal("second lock inside the window should fail")
	}
	if !tr.Lock("u1", 4) || !tr.Lock("u2", 3) {
		t.Fatal("other parts and users are independent")
	}
	if got := tr.Remaining("u1", 3); got != DefaultLockWindow {
		t.Fatalf("remaining=%v", got)
	}

	clock.Advance(2 * time.Second)
	if got := tr.Remaining("u1", 3); got != time.Second {
		t.Fatalf("remaining after 2s=%v", got)
	}
	clock.Advance(time.Second)

	mu.Lock()
	got := append([]int(nil), ticks...)
	mu.Unlock()
	if !reflect.DeepEqual(got, []int{3, 2, 1}) {
		t.Fatalf("ticks=%v want [3 2 1]", got)
	}
	if tr.Remaining("u1", 3) != 0 {
		t.Fatal("lock should have expired")
	}
	if _, ok := tr.state.Locks["u1_3"]; ok {
		t.Fatal("auto-release should clear the stored lock")
	}
	if !tr.Lock("u1", 3) {
		t.Fatal("relock after the window should succeed")
	}
}

func TestTracker_ReleaseStopsCountdown(t *testing.T) {
	clock := newFakeClock()
	ticks := 0
	tr := NewTracker(TrackerOptions{
		Clock:       clock,
		OnCountdown: func(string, uint, int) { ticks++ },
	})

	tr.Lock("u1", 1)
	tr.Release("u1", 1)
	if tr.Remaining("u1", 1) != 0 {
		t.Fatal("release should clear the lock")
	}
	clock.Advance(5 * time.Second)
	if ticks != 1 {
		t.Fatalf("countdown kept ticking after release: %d", ticks)
	}

	// A relock after release starts its own countdown; the old one stays dead.
	if !tr.Lock("u1", 1) {
		t.Fatal("relock after release should succeed")
	}
	clock.Advance(time.Second)
	if ticks != 3 {
		t.Fatalf("ticks=%d want 3", ticks)
	}
}

func TestTracker_Session(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStorage()

	tr := newTestTracker(t, clock, store)
	if tr.BeginSession() {
		t.Fatal("first session is not a refresh")
	}
	tr.MarkUnloading()

	clock.Advance(2 * time.Second)
	next := newTestTracker(t, clock, store)
	if !next.BeginSession() {
		t.Fatal("quick reload should be a refresh")
	}
	if next.BeginSession() {
		t.Fatal("marker is consumed by the first BeginSession")
	}

	next.MarkUnloading()
	clock.Advance(6 * time.Second)
	late := newTestTracker(t, clock, store)
	if late.BeginSession() {
		t.Fatal("slow reload is a new session")
	}
}

func TestTracker_DegradesOnWriteFailure(t *testing.T) {
	store := &failingStorage{saveErr: errors.New("disk full")}
	tr := newTestTracker(t, newFakeClock(), store)

	if tr.Degraded() {
		t.Fatal("not degraded before any write")
	}
	tr.MarkProcessed("k1")
	if !tr.Degraded() {
		t.Fatal("write failure should degrade")
	}
	tr.MarkProcessed("k2")
	tr.Record("u1", 1, 1)
	if store.saves != 1 {
		t.Fatalf("degraded tracker kept writing: %d saves", store.saves)
	}
	if !tr.IsProcessed("k1") || !tr.IsProcessed("k2") || !tr.IsExactDuplicate("u1", 1, 1) {
		t.Fatal("memory state must keep working")
	}
	if !tr.Lock("u1", 1) {
		t.Fatal("locks must keep working")
	}
}

func TestTracker_DegradesOnLoadFailure(t *testing.T) {
	store := &failingStorage{loadErr: errors.New("corrupt")}
	tr := newTestTracker(t, newFakeClock(), store)
	if !tr.Degraded() {
		t.Fatal("load failure should degrade")
	}
	tr.MarkProcessed("k")
	if store.saves != 0 {
		t.Fatal("degraded tracker should not write")
	}
}

func TestFileStorage_RoundTripAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "tracker.json")
	clock := newFakeClock()

	tr := newTestTracker(t, clock, NewFileStorage(path))
	tr.MarkProcessed("k1")
	tr.Record("u1", 2, 3)
	if tr.Degraded() {
		t.Fatal("file storage should accept writes")
	}

	reloaded := newTestTracker(t, clock, NewFileStorage(path))
	if !reloaded.IsProcessed("k1") || !reloaded.IsExactDuplicate("u1", 2, 3) {
		t.Fatal("state did not survive a reload")
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	corrupt := newTestTracker(t, clock, NewFileStorage(path))
	if !corrupt.Degraded() || corrupt.IsProcessed("k1") {
		t.Fatal("corrupt file should yield an empty, degraded tracker")
	}
}

func TestFileStorage_MissingFile(t *testing.T) {
	st, err := NewFileStorage(filepath.Join(t.TempDir(), "none.json")).Load()
	if err != nil || st != nil {
		t.Fatalf("missing file: %v %v", st, err)
	}
}
