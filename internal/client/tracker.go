// Package client is the contributor-side half of the idempotency scheme:
// a Tracker that remembers what this client already sent, a KeyGen that
// mints idempotency keys, and an HTTP Client that gates every mutation on
// both before talking to the API.
package client

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultLockWindow is how long a (user, part) pair stays locked after a
	// submission starts.
	DefaultLockWindow = 3 * time.Second
	// DefaultDuplicateWindow is how long an exact (user, part, quantity)
	// submission blocks an identical one.
	DefaultDuplicateWindow = 3 * time.Minute

	maxProcessed     = 200
	processedMaxAge  = 24 * time.Hour
	recentMaxAge     = 3 * time.Hour
	refreshThreshold = 5 * time.Second
)

// CountdownFunc receives the seconds left on a part lock, once per second.
type CountdownFunc func(user string, part uint, secondsLeft int)

// TrackerOptions configures a Tracker. Zero values take the defaults.
type TrackerOptions struct {
	Storage         Storage
	Clock           Clock
	LockWindow      time.Duration
	DuplicateWindow time.Duration
	OnCountdown     CountdownFunc
	Logger          *zerolog.Logger
}

type countdown struct {
	gen   uint64
	timer Timer
}

// Tracker records processed keys, recent submissions and part locks for one
// client. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	state     *State
	storage   Storage
	clock     Clock
	log       zerolog.Logger
	lockTTL   time.Duration
	dupTTL    time.Duration
	onTick    CountdownFunc
	degraded  bool
	gen       uint64
	countdown map[string]*countdown
}

// NewTracker loads persisted state and prunes stale entries. A storage that
// cannot be read leaves the tracker in memory-only mode.
func NewTracker(opts TrackerOptions) *Tracker {
	t := &Tracker{
		storage:   opts.Storage,
		clock:     opts.Clock,
		lockTTL:   opts.LockWindow,
		dupTTL:    opts.DuplicateWindow,
		onTick:    opts.OnCountdown,
		countdown: map[string]*countdown{},
		log:       zerolog.Nop(),
	}
	if opts.Logger != nil {
		t.log = *opts.Logger
	}
	if t.clock == nil {
		t.clock = SystemClock{}
	}
	if t.lockTTL <= 0 {
		t.lockTTL = DefaultLockWindow
	}
	if t.dupTTL <= 0 {
		t.dupTTL = DefaultDuplicateWindow
	}
	if t.storage == nil {
		t.storage = NewMemoryStorage()
	}

	st, err := t.storage.Load()
	if err != nil {
		t.log.Warn().Err(err).Msg("tracker storage unreadable; continuing in memory")
		t.degraded = true
		st = nil
	}
	t.state = st.normalize()
	t.prune(t.clock.Now())
	return t
}

// Degraded reports whether persistence failed and the tracker now keeps
// state in memory only.
func (t *Tracker) Degraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.degraded
}

// IsProcessed reports whether key was already accepted by the server.
func (t *Tracker) IsProcessed(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.state.Processed[key]
	return ok
}

// MarkProcessed remembers key, keeping only the most recent entries.
func (t *Tracker) MarkProcessed(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Processed[key] = t.clock.Now().UnixMilli()
	trimProcessed(t.state.Processed, key)
	t.persist()
}

// Record notes that user submitted quantity for part just now.
func (t *Tracker) Record(user string, part uint, quantity int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Recent[recentKey(user, part, quantity)] = t.clock.Now().UnixMilli()
	t.persist()
}

// IsExactDuplicate reports whether the same quantity was recorded for
// (user, part) within the duplicate window.
func (t *Tracker) IsExactDuplicate(user string, part uint, quantity int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.state.Recent[recentKey(user, part, quantity)]
	return ok && t.clock.Now().Sub(time.UnixMilli(ts)) < t.dupTTL
}

// Lock claims (user, part) for the lock window. It returns false while an
// earlier lock is still live. On success the countdown hook fires with the
// full window immediately, then once per second, and the lock releases
// itself when the window ends.
func (t *Tracker) Lock(user string, part uint) bool {
	k := lockKey(user, part)
	now := t.clock.Now()

	t.mu.Lock()
	if ts, ok := t.state.Locks[k]; ok && now.Sub(time.UnixMilli(ts)) < t.lockTTL {
		t.mu.Unlock()
		return false
	}
	t.stopCountdown(k)
	t.state.Locks[k] = now.UnixMilli()
	t.persist()
	t.gen++
	cd := &countdown{gen: t.gen}
	t.countdown[k] = cd
	t.mu.Unlock()

	t.tick(user, part, cd.gen, int((t.lockTTL+time.Second-1)/time.Second))
	return true
}

// tick reports secondsLeft and schedules the next step. At zero the lock
// is released. A stale generation means the lock was released or retaken.
func (t *Tracker) tick(user string, part uint, gen uint64, secondsLeft int) {
	k := lockKey(user, part)

	t.mu.Lock()
	cd, ok := t.countdown[k]
	if !ok || cd.gen != gen {
		t.mu.Unlock()
		return
	}
	if secondsLeft <= 0 {
		delete(t.countdown, k)
		delete(t.state.Locks, k)
		t.persist()
		t.mu.Unlock()
		return
	}
	cd.timer = t.clock.AfterFunc(time.Second, func() { t.tick(user, part, gen, secondsLeft-1) })
	hook := t.onTick
	t.mu.Unlock()

	if hook != nil {
		hook(user, part, secondsLeft)
	}
}

// Release clears the (user, part) lock and stops its countdown.
func (t *Tracker) Release(user string, part uint) {
	k := lockKey(user, part)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopCountdown(k)
	if _, ok := t.state.Locks[k]; ok {
		delete(t.state.Locks, k)
		t.persist()
	}
}

// Remaining returns how long the (user, part) lock has left, or zero.
func (t *Tracker) Remaining(user string, part uint) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.state.Locks[lockKey(user, part)]
	if !ok {
		return 0
	}
	left := t.lockTTL - t.clock.Now().Sub(time.UnixMilli(ts))
	if left < 0 {
		return 0
	}
	return left
}

// BeginSession consumes the unloading marker and reports whether the
// previous session ended moments ago, i.e. this one is a refresh.
func (t *Tracker) BeginSession() (refreshed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Unloading == 0 {
		return false
	}
	refreshed = t.clock.Now().Sub(time.UnixMilli(t.state.Unloading)) < refreshThreshold
	t.state.Unloading = 0
	t.persist()
	return refreshed
}

// MarkUnloading records that the current session is ending.
func (t *Tracker) MarkUnloading() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Unloading = t.clock.Now().UnixMilli()
	t.persist()
}

// stopCountdown must be called with t.mu held.
func (t *Tracker) stopCountdown(k string) {
	if cd, ok := t.countdown[k]; ok {
		if cd.timer != nil {
			cd.timer.Stop()
		}
		delete(t.countdown, k)
	}
}

// persist must be called with t.mu held. The first failed write switches
// the tracker to memory-only mode.
func (t *Tracker) persist() {
	if t.degraded {
		return
	}
	if err := t.storage.Save(t.state); err != nil {
		t.degraded = true
		t.log.Warn().Err(err).Msg("tracker storage write failed; continuing in memory")
	}
}

func (t *Tracker) prune(now time.Time) {
	for k, ts := range t.state.Processed {
		if now.Sub(time.UnixMilli(ts)) > processedMaxAge {
			delete(t.state.Processed, k)
		}
	}
	trimProcessed(t.state.Processed, "")
	for k, ts := range t.state.Recent {
		if now.Sub(time.UnixMilli(ts)) > recentMaxAge {
			delete(t.state.Recent, k)
		}
	}
	for k, ts := range t.state.Locks {
		if now.Sub(time.UnixMilli(ts)) >= t.lockTTL {
			delete(t.state.Locks, k)
		}
	}
}

// trimProcessed drops the oldest keys beyond maxProcessed, never keep.
func trimProcessed(m map[string]int64, keep string) {
	excess := len(m) - maxProcessed
	if excess <= 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != keep {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] < m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys[:excess] {
		delete(m, k)
	}
}

func lockKey(user string, part uint) string {
	return user + "_" + strconv.FormatUint(uint64(part), 10)
}

func recentKey(user string, part uint, quantity int) string {
	return lockKey(user, part) + "_" + strconv.Itoa(quantity)
}
