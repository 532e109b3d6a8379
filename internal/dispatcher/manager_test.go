package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wasender/internal/channel"
	"wasender/internal/domain"
	"wasender/internal/events"
	"wasender/internal/store"
)

type fakeManagerStore struct {
	fakeStore
	cmu      sync.Mutex
	statuses map[string]string
}

func newFakeManagerStore(campaignStatus string, msgs []store.Message) *fakeManagerStore {
	return &fakeManagerStore{
		fakeStore: fakeStore{msgs: msgs},
		statuses:  map[string]string{"cmp_1": campaignStatus},
	}
}

func (f *fakeManagerStore) GetCampaign(_ context.Context, id string) (store.Campaign, bool, error) {
	f.cmu.Lock()
	defer f.cmu.Unlock()
	st, ok := f.statuses[id]
	if !ok {
		return store.Campaign{}, false, nil
	}
	return store.Campaign{ID: id, Status: st}, true, nil
}

func (f *fakeManagerStore) ClaimCampaign(_ context.Context, in store.CampaignClaim) (bool, error) {
	f.cmu.Lock()
	defer f.cmu.Unlock()
	st, ok := f.statuses[in.ID]
	if !ok {
		return false, nil
	}
	for _, from := range in.From {
		if st == from {
			f.statuses[in.ID] = in.To
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeManagerStore) CompleteCampaign(ctx context.Context, id string, now time.Time) (bool, error) {
	f.cmu.Lock()
	if f.statuses[id] == "running" {
		f.statuses[id] = "completed"
	}
	f.cmu.Unlock()
	return f.fakeStore.CompleteCampaign(ctx, id, now)
}

func (f *fakeManagerStore) status(id string) string {
	f.cmu.Lock()
	defer f.cmu.Unlock()
	return f.statuses[id]
}

// gatedChannel blocks each send until released, so tests control how far a
// pass gets before pause or shutdown arrives.
type gatedChannel struct {
	fakeChannel
	gate chan struct{}
}

func (g *gatedChannel) SendText(ctx context.Context, to, body string) (channel.Receipt, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return channel.Receipt{}, ctx.Err()
	}
	return g.fakeChannel.SendText(ctx, to, body)
}

func (g *gatedChannel) SendMedia(ctx context.Context, to string, _ channel.MediaRef, caption string) (channel.Receipt, error) {
	return g.SendText(ctx, to, caption)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached")
}

func TestManagerStartRunsToCompletion(t *testing.T) {
	st := newFakeManagerStore("draft", pendingMessages(2))
	d := newTestDispatcher(st, &fakeChannel{ready: true}, events.NewBus())
	m := NewManager(context.Background(), st, d, d.Bus)
	defer m.Close()

	if err := m.Start(context.Background(), "cmp_1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return st.status("cmp_1") == "completed" })
	waitFor(t, func() bool { return !m.Active("cmp_1") })
	if got := st.fakeStore.statuses(); got["sent"] != 2 {
		t.Fatalf("statuses: %v", got)
	}
}

func TestManagerStartUnknownCampaign(t *testing.T) {
	st := newFakeManagerStore("draft", nil)
	d := newTestDispatcher(st, &fakeChannel{ready: true}, events.NewBus())
	m := NewManager(context.Background(), st, d, d.Bus)
	defer m.Close()

	if err := m.Start(context.Background(), "cmp_missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerStartFromTerminalState(t *testing.T) {
	st := newFakeManagerStore("completed", nil)
	d := newTestDispatcher(st, &fakeChannel{ready: true}, events.NewBus())
	m := NewManager(context.Background(), st, d, d.Bus)
	defer m.Close()

	if err := m.Start(context.Background(), "cmp_1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestManagerConcurrentStartExactlyOneWins(t *testing.T) {
	st := newFakeManagerStore("draft", pendingMessages(1))
	d := newTestDispatcher(st, &fakeChannel{ready: true}, events.NewBus())
	m := NewManager(context.Background(), st, d, d.Bus)
	defer m.Close()

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Start(context.Background(), "cmp_1")
		}()
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrInvalidState):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != racers-1 {
		t.Fatalf("wins=%d losses=%d", wins, losses)
	}
}

func TestManagerPauseParksPendingWork(t *testing.T) {
	st := newFakeManagerStore("draft", pendingMessages(3))
	ch := &gatedChannel{fakeChannel: fakeChannel{ready: true}, gate: make(chan struct{})}
	d := newTestDispatcher(st, ch, events.NewBus())
	m := NewManager(context.Background(), st, d, d.Bus)
	defer m.Close()

	if err := m.Start(context.Background(), "cmp_1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	ch.gate <- struct{}{} // let the first send through
	waitFor(t, func() bool { return st.fakeStore.statuses()["sent"] == 1 })

	if err := m.Pause(context.Background(), "cmp_1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	waitFor(t, func() bool { return !m.Active("cmp_1") })

	if got := st.status("cmp_1"); got != "paused" {
		t.Fatalf("campaign status %q, want paused", got)
	}
	if got := st.fakeStore.statuses(); got["pending"] != 2 || got["sent"] != 1 {
		t.Fatalf("statuses: %v", got)
	}

	// Resume picks up only what is still pending.
	if err := m.Resume(context.Background(), "cmp_1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	close(ch.gate) // let everything else through
	waitFor(t, func() bool { return st.status("cmp_1") == "completed" })
	if got := st.fakeStore.statuses(); got["sent"] != 3 {
		t.Fatalf("statuses after resume: %v", got)
	}
	if ch.seq != 3 {
		t.Fatalf("expected 3 sends total, got %d", ch.seq)
	}
}

func TestManagerStartWhileOldPassDrainingRevertsClaim(t *testing.T) {
	st := newFakeManagerStore("paused", pendingMessages(1))
	d := newTestDispatcher(st, &fakeChannel{ready: true}, events.NewBus())
	m := NewManager(context.Background(), st, d, d.Bus)
	defer m.Close()

	// A paused pass that hasn't deregistered yet: between runPass returning
	// and its deferred registry delete.
	m.mu.Lock()
	m.active["cmp_1"] = func() {}
	m.mu.Unlock()

	err := m.Start(context.Background(), "cmp_1")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	// The won claim is handed back; the campaign must not be left running
	// with no pass attached.
	if got := st.status("cmp_1"); got != "paused" {
		t.Fatalf("campaign status %q, want paused", got)
	}

	m.mu.Lock()
	delete(m.active, "cmp_1")
	m.mu.Unlock()

	// Once the old entry drains, starting succeeds.
	if err := m.Start(context.Background(), "cmp_1"); err != nil {
		t.Fatalf("start after drain: %v", err)
	}
	waitFor(t, func() bool { return st.status("cmp_1") == "completed" })
}

func TestManagerPauseWhenNotRunning(t *testing.T) {
	st := newFakeManagerStore("draft", nil)
	d := newTestDispatcher(st, &fakeChannel{ready: true}, events.NewBus())
	m := NewManager(context.Background(), st, d, d.Bus)
	defer m.Close()

	if err := m.Pause(context.Background(), "cmp_1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := m.Pause(context.Background(), "cmp_missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerCloseParksRunningCampaign(t *testing.T) {
	st := newFakeManagerStore("draft", pendingMessages(2))
	ch := &gatedChannel{fakeChannel: fakeChannel{ready: true}, gate: make(chan struct{})}
	d := newTestDispatcher(st, ch, events.NewBus())
	m := NewManager(context.Background(), st, d, d.Bus)

	if err := m.Start(context.Background(), "cmp_1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	ch.gate <- struct{}{}
	waitFor(t, func() bool { return st.fakeStore.statuses()["sent"] == 1 })

	m.Close() // shutdown with a message still pending

	if got := st.status("cmp_1"); got != "paused" {
		t.Fatalf("campaign status %q, want paused", got)
	}
	if got := st.fakeStore.statuses(); got["pending"] != 1 {
		t.Fatalf("statuses: %v", got)
	}
}
