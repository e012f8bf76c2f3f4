// Package synchronizer keeps an in-memory, most-recent-first list of the
// current identity's bookmarks consistent with the store by combining a
// snapshot read with the live change feed.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Options tunes the synchronizer.
type Options struct {
	// Optimistic applies Add and Delete results to the list as soon as the
	// store confirms them instead of waiting for the change feed.
	Optimistic bool

	// OnFeedLost is called when a live subscription ends on its own (store
	// disconnect, slow consumer). It must not block.
	OnFeedLost func()
}

// Snapshot is an immutable view of the synchronizer state.
// Bookmarks must not be modified by receivers.
type Snapshot struct {
	Identity   domain.Identity   `json:"identity"`
	Bookmarks  []domain.Bookmark `json:"bookmarks"`
	Generation uint64            `json:"generation"`
}

// subscription is one live feed tagged with the generation it serves.
type subscription struct {
	src        domain.Subscription
	generation uint64
	done       chan struct{}
}

// Synchronizer is safe for concurrent use.
type Synchronizer struct {
	store  domain.Store
	logger logger.Logger
	opts   Options

	// lifecycle serializes Initialize, Resync and Close.
	lifecycle sync.Mutex

	mu         sync.Mutex
	identity   domain.Identity
	list       []domain.Bookmark
	generation uint64
	sub        *subscription
	closed     bool

	// provider is the session Run follows. Add refuses to write while its
	// identity differs from the one the list is scoped to.
	provider domain.SessionProvider

	// While a snapshot read is in flight, applied events are also queued
	// here and replayed on top of the snapshot once it lands.
	loading bool
	pending []domain.ChangeEvent

	watchers    map[int]chan Snapshot
	nextWatcher int
}

// New creates a synchronizer with no identity.
func New(store domain.Store, log logger.Logger, opts Options) *Synchronizer {
	return &Synchronizer{
		store:    store,
		logger:   log,
		opts:     opts,
		watchers: make(map[int]chan Snapshot),
	}
}

// Initialize scopes the synchronizer to identity. The previous
// subscription is closed before anything else happens. With the zero
// identity the list is emptied and no subscription stays open.
//
// The feed is opened before the snapshot is read so no change committed in
// between is missed; events that the snapshot already contains are no-ops.
func (s *Synchronizer) Initialize(ctx context.Context, identity domain.Identity) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.initialize(ctx, identity)
}

func (s *Synchronizer) initialize(ctx context.Context, identity domain.Identity) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	old := s.sub
	s.sub = nil
	s.generation++
	gen := s.generation
	if !identity.Same(s.identity) {
		s.list = nil
	}
	s.identity = identity
	s.loading = false
	s.pending = nil
	if identity.IsZero() {
		s.list = nil
	}
	s.broadcastLocked()
	s.mu.Unlock()

	s.teardown(old)

	if identity.IsZero() {
		s.logger.Debug("synchronizer unscoped", logger.Uint64("generation", gen))
		return nil
	}

	log := s.logger.With(logger.String("user_id", identity.ID), logger.Uint64("generation", gen))

	src, err := s.store.Subscribe(ctx)
	if err != nil {
		// The snapshot is still loaded; the next resync reopens the feed.
		log.Warn("failed to open change feed", logger.Error(err))
		src = nil
	}

	s.mu.Lock()
	s.loading = true
	if src != nil {
		sub := &subscription{src: src, generation: gen, done: make(chan struct{})}
		s.sub = sub
		go s.pump(sub)
	}
	s.mu.Unlock()

	list, err := s.store.List(ctx, identity)
	if err != nil {
		log.Warn("snapshot read failed, starting from an empty list", logger.Error(err))
		list = nil
	}

	s.mu.Lock()
	s.installLocked(gen, list)
	s.mu.Unlock()

	log.Info("synchronizer initialized", logger.Int("bookmarks", len(list)), logger.Bool("live", src != nil))
	return nil
}

// Resync reloads the snapshot for the current identity. An active feed is
// kept; a lost feed is reopened. Unlike Initialize, a failed read leaves
// the list untouched and is returned.
func (s *Synchronizer) Resync(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	identity := s.identity
	gen := s.generation
	live := s.sub != nil
	if identity.IsZero() {
		s.mu.Unlock()
		return nil
	}
	if live {
		s.loading = true
		s.pending = nil
	}
	s.mu.Unlock()

	if !live {
		s.logger.Info("change feed not active, reinitializing", logger.String("user_id", identity.ID))
		return s.initialize(ctx, identity)
	}

	list, err := s.store.List(ctx, identity)
	if err != nil {
		s.mu.Lock()
		if gen == s.generation {
			s.loading = false
			s.pending = nil
		}
		s.mu.Unlock()
		return fmt.Errorf("resync snapshot: %w", err)
	}

	s.mu.Lock()
	s.installLocked(gen, list)
	s.mu.Unlock()

	s.logger.Debug("snapshot resynced", logger.String("user_id", identity.ID), logger.Int("bookmarks", len(list)))
	return nil
}

// installLocked replaces the list with a snapshot for generation gen and
// replays events received while the snapshot was loading.
func (s *Synchronizer) installLocked(gen uint64, snapshot []domain.Bookmark) {
	if gen != s.generation {
		return
	}

	list := make([]domain.Bookmark, len(snapshot))
	copy(list, snapshot)
	for _, ev := range s.pending {
		list, _ = domain.Reduce(list, s.identity, ev)
	}

	s.list = list
	s.loading = false
	s.pending = nil
	s.broadcastLocked()
}

// applyLocked reduces one event into the list.
func (s *Synchronizer) applyLocked(ev domain.ChangeEvent) {
	if s.loading {
		s.pending = append(s.pending, ev)
	}
	next, changed := domain.Reduce(s.list, s.identity, ev)
	if changed {
		s.list = next
		s.broadcastLocked()
	}
}

// pump applies events of one subscription in receipt order until its
// channel closes.
func (s *Synchronizer) pump(sub *subscription) {
	for ev := range sub.src.Events() {
		if err := ev.Validate(); err != nil {
			s.logger.Warn("discarding malformed change event", logger.Error(err))
			continue
		}

		s.mu.Lock()
		if sub.generation == s.generation {
			s.applyLocked(ev)
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	lost := s.sub == sub
	if lost {
		s.sub = nil
	}
	s.mu.Unlock()

	if lost {
		s.logger.Warn("change feed ended unexpectedly", logger.Uint64("generation", sub.generation))
		if err := sub.src.Close(); err != nil {
			s.logger.Debug("failed to close lost change feed", logger.Error(err))
		}
	}

	// done is closed before OnFeedLost runs so a callback that resyncs can
	// never wait on this goroutine.
	close(sub.done)

	if lost && s.opts.OnFeedLost != nil {
		s.opts.OnFeedLost()
	}
}

func (s *Synchronizer) teardown(sub *subscription) {
	if sub == nil {
		return
	}
	if err := sub.src.Close(); err != nil {
		s.logger.Debug("failed to close change feed", logger.Error(err))
	}
	<-sub.done
}

// Add creates a bookmark for the current identity. Empty fields or a
// missing identity make it a no-op. Store failures are returned.
// While Run has not yet caught up with a session change, Add returns
// domain.ErrSessionChanging instead of writing for the previous identity.
func (s *Synchronizer) Add(ctx context.Context, title, url string) error {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if title == "" || url == "" {
		return nil
	}

	s.mu.Lock()
	closed := s.closed
	identity := s.identity
	gen := s.generation
	provider := s.provider
	s.mu.Unlock()

	if closed {
		return domain.ErrClosed
	}
	if provider != nil && !provider.Current().Same(identity) {
		return domain.ErrSessionChanging
	}
	if identity.IsZero() {
		return nil
	}

	b, err := s.store.Create(ctx, identity, title, url)
	if err != nil {
		return fmt.Errorf("create bookmark: %w", err)
	}

	if s.opts.Optimistic {
		s.mu.Lock()
		if gen == s.generation {
			s.applyLocked(domain.ChangeEvent{Type: domain.EventInsert, Row: b})
		}
		s.mu.Unlock()
	}
	return nil
}

// Delete removes a bookmark by ID. Ownership is left to the store and an
// unknown ID is not an error.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	closed := s.closed
	gen := s.generation
	s.mu.Unlock()

	if closed {
		return domain.ErrClosed
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}

	if s.opts.Optimistic {
		s.mu.Lock()
		if gen == s.generation {
			s.applyLocked(domain.ChangeEvent{Type: domain.EventDelete, Row: domain.Bookmark{ID: id}})
		}
		s.mu.Unlock()
	}
	return nil
}

// Bookmarks returns a copy of the current list.
func (s *Synchronizer) Bookmarks() []domain.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Bookmark, len(s.list))
	copy(out, s.list)
	return out
}

// Identity returns the identity the list is scoped to.
func (s *Synchronizer) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Live reports whether a change feed is currently attached.
func (s *Synchronizer) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

// Snapshot returns the current state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) snapshotLocked() Snapshot {
	list := make([]domain.Bookmark, len(s.list))
	copy(list, s.list)
	return Snapshot{Identity: s.identity, Bookmarks: list, Generation: s.generation}
}

// Watch registers an observer. The channel holds at most one snapshot and
// always the latest one; it starts with the current state and is closed by
// cancel or Close.
func (s *Synchronizer) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w)
			}
		})
	}
	return ch, cancel
}

func (s *Synchronizer) broadcastLocked() {
	if len(s.watchers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.watchers {
		// Only this method sends, under mu: after draining, the send fits.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Run follows a session provider until ctx is done: it scopes to the
// current identity, then re-initializes on every transition. On return the
// synchronizer is unscoped.
func (s *Synchronizer) Run(ctx context.Context, provider domain.SessionProvider) error {
	transitions, unsubscribe := provider.Subscribe()
	defer unsubscribe()

	s.mu.Lock()
	s.provider = provider
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.provider == provider {
			s.provider = nil
		}
		s.mu.Unlock()
	}()

	if err := s.Initialize(ctx, provider.Current()); err != nil {
		if errors.Is(err, domain.ErrClosed) {
			return nil
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			if err := s.Initialize(context.Background(), domain.Identity{}); err != nil && !errors.Is(err, domain.ErrClosed) {
				return err
			}
			return nil

		case t, ok := <-transitions:
			if !ok {
				return nil
			}

			var next domain.Identity
			if t.Kind == domain.SignedIn {
				next = t.Identity
			}
			s.logger.Info("session transition", logger.String("kind", string(t.Kind)), logger.String("user_id", next.ID))

			if err := s.Initialize(ctx, next); err != nil {
				if errors.Is(err, domain.ErrClosed) {
					return nil
				}
				s.logger.Error("failed to apply session transition", logger.Error(err))
			}
		}
	}
}

// Close tears the subscription down, clears the list and releases every
// watcher. Further operations return domain.ErrClosed.
func (s *Synchronizer) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	old := s.sub
	s.sub = nil
	s.identity = domain.Identity{}
	s.list = nil
	s.loading = false
	s.pending = nil
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.mu.Unlock()

	s.teardown(old)
	return nil
}
