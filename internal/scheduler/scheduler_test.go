package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wasender/internal/domain"
	"wasender/internal/store"
)

type fakeStore struct {
	due     []store.Campaign
	err     error
	lastNow time.Time
}

func (f *fakeStore) ListDueCampaigns(_ context.Context, now time.Time) ([]store.Campaign, error) {
	f.lastNow = now
	return f.due, f.err
}

type fakeStarter struct {
	mu      sync.Mutex
	started []string
	errs    map[string]error
}

func (f *fakeStarter) Start(_ context.Context, campaignID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[campaignID]; err != nil {
		return err
	}
	f.started = append(f.started, campaignID)
	return nil
}

func TestTickStartsDueCampaigns(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := now.Add(-time.Minute)
	// One row with a schedule stamp and one without: the success log must
	// cope with a nil ScheduledAt.
	st := &fakeStore{due: []store.Campaign{{ID: "cmp_1", ScheduledAt: &at}, {ID: "cmp_2"}}}
	starter := &fakeStarter{}
	s := &Scheduler{Store: st, Starter: starter, Now: func() time.Time { return now }}

	s.Tick(context.Background())

	if !st.lastNow.Equal(now) {
		t.Fatalf("due query used %v, want %v", st.lastNow, now)
	}
	if len(starter.started) != 2 {
		t.Fatalf("started %v", starter.started)
	}
}

func TestTickSkipsLostRace(t *testing.T) {
	st := &fakeStore{due: []store.Campaign{{ID: "cmp_1"}, {ID: "cmp_2"}}}
	starter := &fakeStarter{errs: map[string]error{"cmp_1": domain.ErrInvalidState}}
	s := &Scheduler{Store: st, Starter: starter}

	s.Tick(context.Background())

	// The lost claim is skipped silently; the rest still start.
	if len(starter.started) != 1 || starter.started[0] != "cmp_2" {
		t.Fatalf("started %v", starter.started)
	}
}

func TestTickToleratesStoreError(t *testing.T) {
	st := &fakeStore{err: errors.New("db down")}
	starter := &fakeStarter{}
	s := &Scheduler{Store: st, Starter: starter}

	s.Tick(context.Background())

	if len(starter.started) != 0 {
		t.Fatalf("started %v", starter.started)
	}
}

func TestTickStartErrorDoesNotStopOthers(t *testing.T) {
	st := &fakeStore{due: []store.Campaign{{ID: "cmp_1"}, {ID: "cmp_2"}}}
	starter := &fakeStarter{errs: map[string]error{"cmp_1": errors.New("boom")}}
	s := &Scheduler{Store: st, Starter: starter}

	s.Tick(context.Background())

	if len(starter.started) != 1 || starter.started[0] != "cmp_2" {
		t.Fatalf("started %v", starter.started)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := &Scheduler{Store: &fakeStore{}, Starter: &fakeStarter{}, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
