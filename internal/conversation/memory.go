package conversation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"

	"github.com/hurricanerix/vizzy/internal/logging"
)

const (
	// DefaultIdleTTL is how long a user can be inactive before cleanup.
	DefaultIdleTTL = 24 * time.Hour

	// DefaultCleanupInterval is how often to run cleanup.
	DefaultCleanupInterval = 1 * time.Hour

	// DefaultMaxUsers is the maximum number of users before LRU eviction.
	DefaultMaxUsers = 10000
)

// MemoryOptions configures a MemoryStore. Zero values select the defaults.
type MemoryOptions struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	MaxUsers        int
	Logger          *logging.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// entry guards one user's state. mu is the per-user critical section.
// lastActivity is read by eviction without taking mu.
type entry struct {
	mu           sync.Mutex
	state        UserTurnState
	lastActivity atomic.Int64
	removed      bool
}

// MemoryStore is an in-process Store.
//
// The user map is protected by a read-write mutex using double-check
// locking; each user additionally has its own mutex held for the duration
// of an Update callback. Users inactive for longer than IdleTTL are removed
// by a background goroutine, and when MaxUsers is reached the least
// recently used idle user is evicted. A user whose lock is held is never
// evicted.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*entry
	closed  bool
	idleTTL time.Duration
	max     int
	now     func() time.Time
	logger  *logging.Logger

	cancelCleanup context.CancelFunc
	cleanupDone   chan struct{}
}

// NewMemoryStore creates an empty store and starts its cleanup goroutine.
// Call Close to stop it.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.MaxUsers <= 0 {
		opts.MaxUsers = DefaultMaxUsers
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &MemoryStore{
		users:         make(map[string]*entry),
		idleTTL:       opts.IdleTTL,
		max:           opts.MaxUsers,
		now:           opts.Now,
		logger:        opts.Logger,
		cancelCleanup: cancel,
		cleanupDone:   make(chan struct{}),
	}

	go s.cleanupLoop(ctx, opts.CleanupInterval)

	return s
}

// Get returns a copy of the user's state.
func (s *MemoryStore) Get(ctx context.Context, userID string) (UserTurnState, bool, error) {
	if userID == "" {
		return UserTurnState{}, false, ErrEmptyUserID
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return UserTurnState{}, false, ErrStoreClosed
	}
	e, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return UserTurnState{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return UserTurnState{}, false, nil
	}
	out, err := cloneState(&e.state)
	if err != nil {
		return UserTurnState{}, false, err
	}
	return out, true, nil
}

// Update runs fn on a copy of the user's state while holding the user's
// lock and commits the copy if fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, userID string, fn UpdateFunc) (UserTurnState, error) {
	if userID == "" {
		return UserTurnState{}, ErrEmptyUserID
	}

	for {
		if err := ctx.Err(); err != nil {
			return UserTurnState{}, err
		}

		e, err := s.getOrCreate(userID)
		if err != nil {
			return UserTurnState{}, err
		}

		e.mu.Lock()
		if e.removed {
			// Deleted or evicted between lookup and lock; start over.
			e.mu.Unlock()
			continue
		}

		next, err := cloneState(&e.state)
		if err != nil {
			e.mu.Unlock()
			return UserTurnState{}, err
		}
		if err := fn(&next); err != nil {
			e.mu.Unlock()
			return UserTurnState{}, err
		}
		next.UserID = userID

		e.state = next
		e.lastActivity.Store(s.now().UnixNano())
		out, err := cloneState(&e.state)
		e.mu.Unlock()
		return out, err
	}
}

// Delete removes the user's state. It waits for an in-flight Update for
// the same user to finish.
func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	e, ok := s.users[userID]
	if !ok {
		return nil
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// Count returns the number of users with state.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Close stops the cleanup goroutine and waits for it to finish. Further
// calls return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelCleanup()
	<-s.cleanupDone
	return nil
}

// getOrCreate returns the entry for userID, creating it if needed.
func (s *MemoryStore) getOrCreate(userID string) (*entry, error) {
	// Fast path for existing users
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	if e, ok := s.users[userID]; ok {
		s.mu.RUnlock()
		return e, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	// Double-check after acquiring the write lock
	if e, ok := s.users[userID]; ok {
		return e, nil
	}

	if len(s.users) >= s.max {
		s.evictLRULocked()
	}

	e := &entry{state: UserTurnState{UserID: userID}}
	e.lastActivity.Store(s.now().UnixNano())
	s.users[userID] = e
	return e, nil
}

// cleanupLoop runs periodically to remove idle users.
func (s *MemoryStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupIdle()
		}
	}
}

// cleanupIdle removes users that have been idle for longer than the TTL.
func (s *MemoryStore) cleanupIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL).UnixNano()
	removed := 0

	for userID, e := range s.users {
		if e.lastActivity.Load() > cutoff {
			continue
		}
		if s.removeIfIdleLocked(userID, e) {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("cleaned up %d idle users (total: %d)", removed, len(s.users))
	}
	return removed
}

// evictLRULocked removes the least recently used user whose lock is free.
// Must be called with s.mu held for writing.
func (s *MemoryStore) evictLRULocked() {
	var oldestID string
	var oldest *entry

	for userID, e := range s.users {
		if oldest == nil || e.lastActivity.Load() < oldest.lastActivity.Load() {
			oldestID, oldest = userID, e
		}
	}
	if oldest == nil {
		return
	}

	idle := s.now().Sub(time.Unix(0, oldest.lastActivity.Load()))
	if s.removeIfIdleLocked(oldestID, oldest) {
		s.logger.Debug("evicted LRU user %s (idle for %v)", oldestID, idle)
	}
}

// removeIfIdleLocked deletes the entry unless another goroutine holds its
// lock. Must be called with s.mu held for writing.
func (s *MemoryStore) removeIfIdleLocked(userID string, e *entry) bool {
	if !e.mu.TryLock() {
		return false
	}
	e.removed = true
	e.mu.Unlock()
	delete(s.users, userID)
	return true
}

// copyOptions deep-copies slices and pointers. time.Time has no exported
// fields, so it is passed through by a converter instead of walked.
var copyOptions = copier.Option{
	DeepCopy: true,
	Converters: []copier.TypeConverter{{
		SrcType: time.Time{},
		DstType: time.Time{},
		Fn:      func(src interface{}) (interface{}, error) { return src, nil },
	}},
}

// cloneState deep-copies a state so callers never share slices or pointers
// with the store.
func cloneState(src *UserTurnState) (UserTurnState, error) {
	var dst UserTurnState
	if err := copier.CopyWithOption(&dst, src, copyOptions); err != nil {
		return UserTurnState{}, fmt.Errorf("copy state: %w", err)
	}
	return dst, nil
}
