package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/store/memory"
)

// fakeStore serves a fixed snapshot and hands out subscriptions the test
// drives by hand.
type fakeStore struct {
	mu           sync.Mutex
	rows         []domain.Bookmark
	listErr      error
	createErr    error
	deleteErr    error
	subscribeErr error
	listHook     func()
	creates      int
	createdFor   []string
	deletes      []string
	subs         []*fakeSub
}

func (f *fakeStore) List(ctx context.Context, owner domain.Identity) ([]domain.Bookmark, error) {
	f.mu.Lock()
	hook := f.listHook
	err := f.listErr
	out := make([]domain.Bookmark, 0)
	for _, b := range f.rows {
		if b.OwnerID == owner.ID {
			out = append(out, b)
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeStore) Create(ctx context.Context, owner domain.Identity, title, url string) (domain.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.createdFor = append(f.createdFor, owner.ID)
	if f.createErr != nil {
		return domain.Bookmark{}, f.createErr
	}
	return domain.Bookmark{ID: "created", OwnerID: owner.ID, Title: title, URL: url, CreatedAt: time.Now()}, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func (f *fakeStore) Subscribe(ctx context.Context) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &fakeSub{ch: make(chan domain.ChangeEvent, 16)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeStore) sub(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeStore) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeSub struct {
	mu     sync.Mutex
	ch     chan domain.ChangeEvent
	closed bool
}

func (f *fakeSub) Events() <-chan domain.ChangeEvent { return f.ch }

func (f *fakeSub) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return nil
}

func (f *fakeSub) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// push delivers ev unless the subscription was already closed.
func (f *fakeSub) push(ev domain.ChangeEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.ch <- ev
	return true
}

func insert(id, owner string) domain.ChangeEvent {
	return domain.ChangeEvent{Type: domain.EventInsert, Row: domain.Bookmark{ID: id, OwnerID: owner, Title: id, URL: "https://" + id + ".example"}}
}

func remove(id string) domain.ChangeEvent {
	return domain.ChangeEvent{Type: domain.EventDelete, Row: domain.Bookmark{ID: id}}
}

func ids(list []domain.Bookmark) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

func equalIDs(got []domain.Bookmark, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].ID != want[i] {
			return false
		}
	}
	return true
}

// waitFor polls s until its list matches want.
func waitFor(t *testing.T, s *Synchronizer, want ...string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := s.Bookmarks()
		if equalIDs(got, want...) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("list = %v, want %v", ids(got), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newFake(rows ...domain.Bookmark) *fakeStore {
	return &fakeStore{rows: rows}
}

var (
	alice = domain.Identity{ID: "alice", Email: "alice@example.com"}
	bob   = domain.Identity{ID: "bob"}
)

func TestScenario_AddThenDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(logger.NewNop())
	defer store.Close()

	b1, err := store.Create(ctx, alice, "Docs", "https://docs.example")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	b2, err := store.Create(ctx, alice, "Blog", "https://blog.example")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := s.Bookmarks(); !equalIDs(got, b2.ID, b1.ID) {
		t.Fatalf("after Initialize list = %v, want [%s %s]", ids(got), b2.ID, b1.ID)
	}

	if err := s.Add(ctx, "News", "https://news.example"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Bookmarks()) != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("insert event never applied, list = %v", ids(s.Bookmarks()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	list := s.Bookmarks()
	b3 := list[0]
	if b3.Title != "News" || b3.URL != "https://news.example" || b3.OwnerID != alice.ID {
		t.Errorf("new bookmark = %+v", b3)
	}
	if !equalIDs(list, b3.ID, b2.ID, b1.ID) {
		t.Fatalf("list = %v, want [B3 B2 B1]", ids(list))
	}

	if err := s.Delete(ctx, b1.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	waitFor(t, s, b3.ID, b2.ID)
}

func TestInitialize_MatchesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(logger.NewNop())
	defer store.Close()

	var want []string
	for _, title := range []string{"a", "b", "c"} {
		b, err := store.Create(ctx, alice, title, "https://"+title+".example")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		want = append([]string{b.ID}, want...)
		if _, err := store.Create(ctx, bob, title, "https://"+title+".example"); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	snapshot, _ := store.List(ctx, alice)
	if got := s.Bookmarks(); !equalIDs(got, ids(snapshot)...) || !equalIDs(got, want...) {
		t.Errorf("list = %v, want %v", ids(got), want)
	}
	if !s.Live() {
		t.Error("expected an active change feed")
	}
}

func TestDeleteTwice(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(logger.NewNop())
	defer store.Close()

	keep, _ := store.Create(ctx, alice, "Keep", "https://keep.example")
	gone, _ := store.Create(ctx, alice, "Gone", "https://gone.example")

	s := New(store, logger.NewNop(), Options{})
	defer s.Close()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, gone.ID); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}
	waitFor(t, s, keep.ID)

	// A later insert acts as a barrier: once it shows up, any duplicate
	// delete event has been processed too.
	fresh, _ := store.Create(ctx, alice, "Fresh", "https://fresh.example")
	waitFor(t, s, fresh.ID, keep.ID)
}

func TestLiveInsertOrdering(t *testing.T) {
	store := newFake(
		domain.Bookmark{ID: "p2", OwnerID: alice.ID},
		domain.Bookmark{ID: "p1", OwnerID: alice.ID},
	)
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	sub := store.sub(0)
	for _, id := range []string{"e1", "e2", "e3"} {
		sub.push(insert(id, alice.ID))
	}
	waitFor(t, s, "e3", "e2", "e1", "p2", "p1")
}

func TestLiveInsertIsolation(t *testing.T) {
	store := newFake()
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	sub := store.sub(0)
	sub.push(insert("theirs", bob.ID))
	sub.push(insert("mine", alice.ID))
	waitFor(t, s, "mine")
}

func TestDeleteEventIgnoresOwner(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	// Delete payloads only guarantee the ID.
	store.sub(0).push(remove("x"))
	waitFor(t, s)
}

func TestUpdateAndMalformedEventsAreSkipped(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID, Title: "old"})
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	sub := store.sub(0)
	sub.push(domain.ChangeEvent{Type: domain.EventUpdate, Row: domain.Bookmark{ID: "x", OwnerID: alice.ID, Title: "new"}})
	sub.push(domain.ChangeEvent{Type: domain.EventInsert, Row: domain.Bookmark{OwnerID: alice.ID}})
	sub.push(domain.ChangeEvent{Type: "truncate"})
	sub.push(insert("y", alice.ID))

	waitFor(t, s, "y", "x")
	if got := s.Bookmarks()[1].Title; got != "old" {
		t.Errorf("update was applied, title = %q", got)
	}
	if !s.Live() {
		t.Error("malformed events should not end the subscription")
	}
}

func TestTeardownOnSignOut(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	ctx := context.Background()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	old := store.sub(0)

	if err := s.Initialize(ctx, domain.Identity{}); err != nil {
		t.Fatalf("Initialize(none) error = %v", err)
	}
	if !old.isClosed() {
		t.Error("previous subscription should be closed")
	}
	if s.Live() {
		t.Error("no subscription should be active without identity")
	}
	if got := s.Bookmarks(); len(got) != 0 {
		t.Errorf("list = %v, want empty", ids(got))
	}

	if old.push(insert("late", alice.ID)) {
		t.Fatal("late event was accepted by a closed subscription")
	}
	time.Sleep(20 * time.Millisecond)
	if got := s.Bookmarks(); len(got) != 0 {
		t.Errorf("late event applied, list = %v", ids(got))
	}
}

func TestIdentitySwitchRescopes(t *testing.T) {
	store := newFake(
		domain.Bookmark{ID: "a1", OwnerID: alice.ID},
		domain.Bookmark{ID: "b1", OwnerID: bob.ID},
	)
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	ctx := context.Background()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize(alice) error = %v", err)
	}
	if err := s.Initialize(ctx, bob); err != nil {
		t.Fatalf("Initialize(bob) error = %v", err)
	}

	if !store.sub(0).isClosed() {
		t.Error("alice's subscription should be closed")
	}
	if store.subCount() != 2 {
		t.Fatalf("subscriptions opened = %d, want 2", store.subCount())
	}
	if got := s.Bookmarks(); !equalIDs(got, "b1") {
		t.Errorf("list = %v, want [b1]", ids(got))
	}

	store.sub(1).push(insert("a2", alice.ID))
	store.sub(1).push(insert("b2", bob.ID))
	waitFor(t, s, "b2", "b1")
}

func TestSnapshotFailureStartsEmpty(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	store.listErr = errors.New("boom")
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("Initialize() error = %v, snapshot failures must not be fatal", err)
	}
	if got := s.Bookmarks(); len(got) != 0 {
		t.Errorf("list = %v, want empty", ids(got))
	}

	store.sub(0).push(insert("y", alice.ID))
	waitFor(t, s, "y")
}

func TestEventsDuringSnapshotAreReplayed(t *testing.T) {
	store := newFake(
		domain.Bookmark{ID: "s2", OwnerID: alice.ID},
		domain.Bookmark{ID: "s1", OwnerID: alice.ID},
	)
	store.listHook = func() {
		sub := store.sub(store.subCount() - 1)
		sub.push(remove("s1"))
		sub.push(insert("n1", alice.ID))
		time.Sleep(20 * time.Millisecond)
	}

	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	waitFor(t, s, "n1", "s2")
}

func TestAddNoops(t *testing.T) {
	store := newFake()
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()
	ctx := context.Background()

	if err := s.Add(ctx, "Docs", "https://docs.example"); err != nil {
		t.Errorf("Add() without identity error = %v", err)
	}

	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	for _, tc := range [][2]string{{"", "https://x.example"}, {"Title", "  "}, {"  ", ""}} {
		if err := s.Add(ctx, tc[0], tc[1]); err != nil {
			t.Errorf("Add(%q, %q) error = %v", tc[0], tc[1], err)
		}
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.creates != 0 {
		t.Errorf("store.Create called %d times, want 0", store.creates)
	}
}

func TestStoreFailuresAreReturned(t *testing.T) {
	cause := errors.New("connection reset")
	store := newFake()
	store.createErr = cause
	store.deleteErr = cause

	s := New(store, logger.NewNop(), Options{})
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := s.Add(ctx, "Docs", "https://docs.example"); !errors.Is(err, cause) {
		t.Errorf("Add() error = %v, want %v", err, cause)
	}
	if err := s.Delete(ctx, "x"); !errors.Is(err, cause) {
		t.Errorf("Delete() error = %v, want %v", err, cause)
	}
	if got := s.Bookmarks(); len(got) != 0 {
		t.Errorf("list changed after failures: %v", ids(got))
	}
}

func TestAddTrimsInput(t *testing.T) {
	store := memory.NewStore(logger.NewNop())
	defer store.Close()
	s := New(store, logger.NewNop(), Options{Optimistic: true})
	defer s.Close()

	ctx := context.Background()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := s.Add(ctx, "  News ", " https://news.example\n"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	list := s.Bookmarks()
	if len(list) != 1 || list[0].Title != "News" || list[0].URL != "https://news.example" {
		t.Errorf("list = %+v", list)
	}
}

func TestOptimisticMode(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	s := New(store, logger.NewNop(), Options{Optimistic: true})
	defer s.Close()

	ctx := context.Background()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := s.Add(ctx, "Docs", "https://docs.example"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got := s.Bookmarks(); !equalIDs(got, "created", "x") {
		t.Fatalf("optimistic add not applied, list = %v", ids(got))
	}

	if err := s.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := s.Bookmarks(); !equalIDs(got, "created") {
		t.Fatalf("optimistic delete not applied, list = %v", ids(got))
	}

	// The feed confirms both changes later; neither may duplicate.
	sub := store.sub(0)
	sub.push(insert("created", alice.ID))
	sub.push(remove("x"))
	sub.push(insert("barrier", alice.ID))
	waitFor(t, s, "barrier", "created")
}

func TestFeedOnlyModeWaitsForEvents(t *testing.T) {
	store := newFake()
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	ctx := context.Background()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := s.Add(ctx, "Docs", "https://docs.example"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got := s.Bookmarks(); len(got) != 0 {
		t.Fatalf("feed-only add applied before the event: %v", ids(got))
	}
	store.sub(0).push(insert("created", alice.ID))
	waitFor(t, s, "created")
}

func TestFeedLossAndResync(t *testing.T) {
	lost := make(chan struct{}, 1)
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	s := New(store, logger.NewNop(), Options{OnFeedLost: func() {
		select {
		case lost <- struct{}{}:
		default:
		}
	}})
	defer s.Close()

	ctx := context.Background()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	_ = store.sub(0).Close()
	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("OnFeedLost was not called")
	}
	if s.Live() {
		t.Error("feed should be reported as lost")
	}

	store.mu.Lock()
	store.rows = append([]domain.Bookmark{{ID: "y", OwnerID: alice.ID}}, store.rows...)
	store.mu.Unlock()

	if err := s.Resync(ctx); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}
	if !s.Live() || store.subCount() != 2 {
		t.Errorf("resync should reopen the feed (live=%v, subs=%d)", s.Live(), store.subCount())
	}
	if got := s.Bookmarks(); !equalIDs(got, "y", "x") {
		t.Errorf("list = %v, want [y x]", ids(got))
	}
}

func TestResyncKeepsFeedAndListOnFailure(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	ctx := context.Background()
	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	store.mu.Lock()
	store.listErr = errors.New("timeout")
	store.mu.Unlock()

	if err := s.Resync(ctx); err == nil {
		t.Fatal("Resync() should report snapshot failures")
	}
	if got := s.Bookmarks(); !equalIDs(got, "x") {
		t.Errorf("list = %v, want [x]", ids(got))
	}
	if store.subCount() != 1 || store.sub(0).isClosed() {
		t.Error("resync must not touch a live subscription")
	}
}

func TestResyncWithoutIdentity(t *testing.T) {
	store := newFake()
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Resync(context.Background()); err != nil {
		t.Errorf("Resync() error = %v", err)
	}
	if store.subCount() != 0 {
		t.Error("no feed should be opened without identity")
	}
}

func TestSubscribeFailureStillLoadsSnapshot(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	store.subscribeErr = errors.New("listen failed")
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	if err := s.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := s.Bookmarks(); !equalIDs(got, "x") {
		t.Errorf("list = %v, want [x]", ids(got))
	}
	if s.Live() {
		t.Error("no feed should be active")
	}
}

func TestWatch(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	updates, cancel := s.Watch()

	first := <-updates
	if !first.Identity.IsZero() || len(first.Bookmarks) != 0 {
		t.Errorf("initial snapshot = %+v, want empty", first)
	}

	if err := s.Initialize(context.Background(), alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	store.sub(0).push(insert("y", alice.ID))
	waitFor(t, s, "y", "x")

	// Latest wins: only the most recent state is buffered.
	select {
	case snap := <-updates:
		if snap.Identity.ID != alice.ID || !equalIDs(snap.Bookmarks, "y", "x") {
			t.Errorf("snapshot = %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	cancel()
	if _, ok := <-updates; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	store := newFake(domain.Bookmark{ID: "x", OwnerID: alice.ID})
	s := New(store, logger.NewNop(), Options{})
	ctx := context.Background()

	if err := s.Initialize(ctx, alice); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	updates, _ := s.Watch()
	<-updates

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if !store.sub(0).isClosed() {
		t.Error("subscription should be closed")
	}
	if _, ok := <-updates; ok {
		t.Error("watch channel should be closed")
	}
	if got := s.Bookmarks(); len(got) != 0 {
		t.Errorf("list = %v, want empty", ids(got))
	}
	if err := s.Initialize(ctx, alice); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("Initialize() after Close error = %v", err)
	}
	if err := s.Add(ctx, "t", "u"); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("Add() after Close error = %v", err)
	}
	if err := s.Delete(ctx, "x"); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("Delete() after Close error = %v", err)
	}
}

// fakeProvider is a hand-driven session provider.
type fakeProvider struct {
	mu      sync.Mutex
	current domain.Identity
	ch      chan domain.Transition
}

func (p *fakeProvider) Current() domain.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// signIn switches the current identity and queues the transition.
func (p *fakeProvider) signIn(id domain.Identity) {
	p.mu.Lock()
	p.current = id
	p.mu.Unlock()
	p.ch <- domain.Transition{Kind: domain.SignedIn, Identity: id}
}

func (p *fakeProvider) Subscribe() (<-chan domain.Transition, func()) {
	return p.ch, func() {}
}

func waitIdentity(t *testing.T, s *Synchronizer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Identity().ID != want {
		if time.Now().After(deadline) {
			t.Fatalf("identity = %q, want %q", s.Identity().ID, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunFollowsSession(t *testing.T) {
	store := newFake(
		domain.Bookmark{ID: "a1", OwnerID: alice.ID},
		domain.Bookmark{ID: "b1", OwnerID: bob.ID},
	)
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	provider := &fakeProvider{current: alice, ch: make(chan domain.Transition, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, provider) }()

	waitIdentity(t, s, alice.ID)
	waitFor(t, s, "a1")

	provider.ch <- domain.Transition{Kind: domain.SignedIn, Identity: bob}
	waitIdentity(t, s, bob.ID)
	waitFor(t, s, "b1")

	provider.ch <- domain.Transition{Kind: domain.SignedOut}
	waitIdentity(t, s, "")
	waitFor(t, s)

	provider.ch <- domain.Transition{Kind: domain.SignedIn, Identity: alice}
	waitIdentity(t, s, alice.ID)

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !s.Identity().IsZero() || s.Live() {
		t.Error("Run should leave the synchronizer unscoped")
	}
}

func TestAddWaitsForSessionSwitch(t *testing.T) {
	store := newFake()
	loading := make(chan struct{}, 1)
	release := make(chan struct{})
	store.listHook = func() {
		select {
		case loading <- struct{}{}:
		default:
		}
		<-release
	}

	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	provider := &fakeProvider{current: alice, ch: make(chan domain.Transition, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, provider) }()

	// Run is stuck reading alice's snapshot when the session moves to bob.
	<-loading
	provider.signIn(bob)

	err := s.Add(ctx, "News", "https://news.example")
	if !errors.Is(err, domain.ErrSessionChanging) {
		t.Fatalf("Add() during switch error = %v, want ErrSessionChanging", err)
	}

	close(release)
	waitIdentity(t, s, bob.ID)

	if err := s.Add(ctx, "News", "https://news.example"); err != nil {
		t.Fatalf("Add() after switch error = %v", err)
	}

	store.mu.Lock()
	owners := append([]string(nil), store.createdFor...)
	store.mu.Unlock()
	if len(owners) != 1 || owners[0] != bob.ID {
		t.Errorf("bookmarks created for %v, want [bob]", owners)
	}
}

func TestAddBeforeRunCatchesUpWithSignIn(t *testing.T) {
	store := newFake()
	s := New(store, logger.NewNop(), Options{})
	defer s.Close()

	provider := &fakeProvider{ch: make(chan domain.Transition, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, provider) }()

	// Run has scoped to the signed-out state before the sign-in happens.
	waitGeneration(t, s, 1)
	provider.mu.Lock()
	provider.current = alice
	provider.mu.Unlock()

	if err := s.Add(ctx, "Docs", "https://docs.example"); !errors.Is(err, domain.ErrSessionChanging) {
		t.Fatalf("Add() before rescoping error = %v, want ErrSessionChanging", err)
	}

	provider.ch <- domain.Transition{Kind: domain.SignedIn, Identity: alice}
	waitIdentity(t, s, alice.ID)
	if err := s.Add(ctx, "Docs", "https://docs.example"); err != nil {
		t.Fatalf("Add() after rescoping error = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.creates != 1 {
		t.Errorf("creates = %d, want 1", store.creates)
	}
}

func waitGeneration(t *testing.T, s *Synchronizer, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Generation < want {
		if time.Now().After(deadline) {
			t.Fatalf("generation = %d, want >= %d", s.Snapshot().Generation, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
