package state

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// InterruptedMessage replaces the message of a run that was in flight when
// the process stopped.
const InterruptedMessage = "interrupted by restart"

// subscriberBuffer is the per-subscriber backlog before snapshots drop.
const subscriberBuffer = 16

// Tracker serializes every read and write of State behind one mutex.
// All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	state   State
	seq     uint64
	subs    map[int]chan State
	nextSub int

	now    func() time.Time
	store  Store
	logger *zap.Logger

	saveMu  sync.Mutex
	savedTo uint64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStore persists every change to s and restores from it at startup.
func WithStore(s Store) Option {
	return func(t *Tracker) { t.store = s }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a tracker in the initial idle state, or in the state
// restored from the configured store. A restored run that was still
// cloning or indexing is marked failed since its work died with the
// previous process.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		state:  Initial(),
		subs:   make(map[int]chan State),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.state.LastUpdated = t.now()

	if t.store != nil {
		t.restore()
	}
	return t
}

func (t *Tracker) restore() {
	saved, ok, err := t.store.Load()
	if err != nil {
		t.logger.Warn("ignoring unreadable persisted state", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	if saved.Status.InFlight() {
		saved.Status = StatusError
		saved.Message = InterruptedMessage
		saved.Progress = 0
	}
	if saved.Status == "" {
		saved.Status = StatusIdle
	}
	saved.IsProcessing = false

	t.mu.Lock()
	t.state = saved.clone()
	t.stampLocked()
	snap, seq := t.state.clone(), t.seq
	t.mu.Unlock()

	t.logger.Info("restored persisted state",
		zap.String("status", string(snap.Status)),
		zap.String("repo_id", snap.ActiveRepoID()))
	t.persist(snap, seq)
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Update applies p and returns the resulting state.
func (t *Tracker) Update(p Patch) State {
	t.mu.Lock()
	p.apply(&t.state)
	snap, seq := t.commitLocked()
	t.mu.Unlock()

	t.persist(snap, seq)
	return snap
}

// UpdateRun applies p only while runID is still the active run. It
// returns false after a Reset or a newer run has taken over.
func (t *Tracker) UpdateRun(runID string, p Patch) bool {
	t.mu.Lock()
	if t.state.RunID != runID {
		t.mu.Unlock()
		return false
	}
	p.apply(&t.state)
	snap, seq := t.commitLocked()
	t.mu.Unlock()

	t.persist(snap, seq)
	return true
}

// TryBegin marks a run as in flight and applies p, unless one already is.
// A rejected call leaves the state untouched.
func (t *Tracker) TryBegin(p Patch) (State, bool) {
	t.mu.Lock()
	if t.state.IsProcessing {
		snap := t.state.clone()
		t.mu.Unlock()
		return snap, false
	}
	t.state.IsProcessing = true
	p.apply(&t.state)
	snap, seq := t.commitLocked()
	t.mu.Unlock()

	t.persist(snap, seq)
	return snap, true
}

// End releases the in-flight flag held by runID. It is a no-op when the
// run was already superseded by Reset or another run.
func (t *Tracker) End(runID string) bool {
	t.mu.Lock()
	if !t.state.IsProcessing || t.state.RunID != runID {
		t.mu.Unlock()
		return false
	}
	t.state.IsProcessing = false
	snap, seq := t.commitLocked()
	t.mu.Unlock()

	t.persist(snap, seq)
	return true
}

// Reset restores the initial idle state and releases the in-flight flag.
// A run still executing loses ownership and its later updates are dropped.
func (t *Tracker) Reset() State {
	t.mu.Lock()
	last := t.state.LastUpdated
	t.state = Initial()
	t.state.LastUpdated = last
	snap, seq := t.commitLocked()
	t.mu.Unlock()

	t.persist(snap, seq)
	return snap
}

// Subscribe returns a channel receiving a snapshot after every change and
// a function that unsubscribes and closes it. Snapshots are dropped for
// subscribers that fall behind.
func (t *Tracker) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// commitLocked stamps the state, notifies subscribers and returns the
// snapshot to persist. Caller holds t.mu.
func (t *Tracker) commitLocked() (State, uint64) {
	t.stampLocked()
	snap := t.state.clone()
	for _, ch := range t.subs {
		select {
		case ch <- snap.clone():
		default:
		}
	}
	return snap, t.seq
}

// stampLocked advances LastUpdated without ever moving it backwards.
func (t *Tracker) stampLocked() {
	now := t.now()
	if now.Before(t.state.LastUpdated) {
		now = t.state.LastUpdated
	}
	t.state.LastUpdated = now
	t.seq++
}

// persist saves snap unless a newer snapshot was already written.
func (t *Tracker) persist(snap State, seq uint64) {
	if t.store == nil {
		return
	}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	if seq <= t.savedTo {
		return
	}
	if err := t.store.Save(snap); err != nil {
		t.logger.Warn("failed to persist state", zap.Error(err))
		return
	}
	t.savedTo = seq
}
