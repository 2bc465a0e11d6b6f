package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testTable() campaign.Table {
	return campaign.Table{
		Type:           "test_campaign",
		Anchor:         campaign.AnchorCreation,
		TerminalStatus: campaign.StatusExpired,
		Interval:       time.Hour,
		Stages: []campaign.StageDefinition{
			{Index: 0, Name: "first", Offset: 24 * time.Hour},
			{Index: 1, Name: "second", Offset: 72 * time.Hour, Terminal: true},
		},
	}
}

func testRegistry(t *testing.T) *campaign.Registry {
	t.Helper()
	reg, err := campaign.NewRegistry(testTable())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

type fakeStore struct {
	mu       sync.Mutex
	subjects map[uuid.UUID]*campaign.Subject
	fetchErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{subjects: make(map[uuid.UUID]*campaign.Subject)}
}

func (f *fakeStore) add(sub campaign.Subject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := sub
	f.subjects[sub.ID] = &copied
}

func (f *fakeStore) FetchActive(_ context.Context, campaignType string, _ time.Time) ([]campaign.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []campaign.Subject
	for _, sub := range f.subjects {
		if sub.CampaignType == campaignType && sub.Status == campaign.StatusActive {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeStore) Advance(_ context.Context, id uuid.UUID, expectedCursor, newCursor int, newStatus campaign.Status, firedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subjects[id]
	if !ok || sub.StageCursor != expectedCursor || sub.Status != campaign.StatusActive {
		return campaign.ErrAdvanceConflict
	}
	sub.StageCursor = newCursor
	sub.Status = newStatus
	if newCursor > expectedCursor {
		t := firedAt
		sub.LastStageFiredAt = &t
	}
	return nil
}

type countingNotifier struct {
	mu   sync.Mutex
	sent int
	errs []error
}

func (n *countingNotifier) Send(context.Context, campaign.Subject, campaign.StageDefinition, campaign.RenderedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	if len(n.errs) > 0 {
		err := n.errs[0]
		n.errs = n.errs[1:]
		return err
	}
	return nil
}

type stubBuilder struct{}

func (stubBuilder) Build(sub campaign.Subject, stage campaign.StageDefinition) (campaign.RenderedPayload, error) {
	return campaign.RenderedPayload{Channel: "email", To: sub.Email, Subject: stage.Name, Body: "hello"}, nil
}

func newTestDriver(t *testing.T, store *fakeStore, notifier campaign.Notifier, now time.Time) *Driver {
	t.Helper()
	d, err := New(
		testRegistry(t),
		store,
		notifier,
		map[string]campaign.PayloadBuilder{"test_campaign": stubBuilder{}},
		Config{Concurrency: 2},
		zap.NewNop(),
		func() time.Time { return now },
	)
	if err != nil {
		t.Fatalf("driver: %v", err)
	}
	return d
}

func activeSubject(cursor int, createdAt time.Time) campaign.Subject {
	return campaign.Subject{
		ID:           uuid.New(),
		CampaignType: "test_campaign",
		Status:       campaign.StatusActive,
		StageCursor:  cursor,
		CreatedAt:    createdAt,
		Email:        "c@example.com",
	}
}

func TestNew_RequiresBuilderPerCampaign(t *testing.T) {
	_, err := New(testRegistry(t), newFakeStore(), &countingNotifier{}, nil, Config{}, zap.NewNop(), nil)
	if err == nil {
		t.Fatal("expected error for missing builder")
	}
}

func TestRunNow_UnknownCampaignType(t *testing.T) {
	d := newTestDriver(t, newFakeStore(), &countingNotifier{}, t0)
	if _, err := d.RunNow(context.Background(), "no_such_campaign"); err == nil {
		t.Fatal("expected error for unknown campaign type")
	}
}

func TestRunNow_FetchErrorAbortsTick(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = errors.New("connection refused")
	notifier := &countingNotifier{}
	d := newTestDriver(t, store, notifier, t0)

	_, err := d.RunNow(context.Background(), "test_campaign")
	if err == nil {
		t.Fatal("expected error when scan fails")
	}
	if notifier.sent != 0 {
		t.Errorf("dispatched %d payloads on an aborted tick, want 0", notifier.sent)
	}
}

func TestRunNow_MixedOutcomes(t *testing.T) {
	store := newFakeStore()
	// Due at stage 0, fresh (not due), and due terminal at stage 1.
	store.add(activeSubject(0, t0.Add(-25*time.Hour)))
	store.add(activeSubject(0, t0.Add(-1*time.Hour)))
	store.add(activeSubject(1, t0.Add(-80*time.Hour)))

	d := newTestDriver(t, store, &countingNotifier{}, t0)
	stats, err := d.RunNow(context.Background(), "test_campaign")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Scanned != 3 {
		t.Errorf("scanned = %d, want 3", stats.Scanned)
	}
	if stats.Fired != 2 {
		t.Errorf("fired = %d, want 2", stats.Fired)
	}
	if stats.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", stats.Skipped)
	}
	if stats.Failed != 0 || stats.Conflicts != 0 {
		t.Errorf("failed=%d conflicts=%d, want 0/0", stats.Failed, stats.Conflicts)
	}
}

func TestRunNow_FailureIsolatedPerSubject(t *testing.T) {
	store := newFakeStore()
	failing := activeSubject(0, t0.Add(-30*time.Hour))
	healthy := activeSubject(0, t0.Add(-30*time.Hour))
	store.add(failing)
	store.add(healthy)

	notifier := &countingNotifier{errs: []error{campaign.Transient(errors.New("throttled"))}}
	d := newTestDriver(t, store, notifier, t0)

	stats, err := d.RunNow(context.Background(), "test_campaign")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Fired != 1 {
		t.Errorf("fired = %d, want 1", stats.Fired)
	}
	if stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}

	// One of the two advanced, the other keeps its cursor for retry.
	store.mu.Lock()
	defer store.mu.Unlock()
	advanced := 0
	for _, sub := range store.subjects {
		if sub.StageCursor == 1 {
			advanced++
		}
	}
	if advanced != 1 {
		t.Errorf("advanced subjects = %d, want 1", advanced)
	}
}

func TestRunNow_SingleStagePerTick(t *testing.T) {
	store := newFakeStore()
	// Old enough for both stages, but only one fires per tick.
	sub := activeSubject(0, t0.Add(-200*time.Hour))
	store.add(sub)

	notifier := &countingNotifier{}
	d := newTestDriver(t, store, notifier, t0)

	if _, err := d.RunNow(context.Background(), "test_campaign"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.sent != 1 {
		t.Errorf("sent = %d, want exactly 1 per tick", notifier.sent)
	}

	store.mu.Lock()
	got := *store.subjects[sub.ID]
	store.mu.Unlock()
	if got.StageCursor != 1 {
		t.Errorf("cursor = %d, want 1", got.StageCursor)
	}
	if got.Status != campaign.StatusActive {
		t.Errorf("status = %s, want active after non-terminal stage", got.Status)
	}

	// A second tick fires the terminal stage and retires the subject.
	if _, err := d.RunNow(context.Background(), "test_campaign"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.mu.Lock()
	got = *store.subjects[sub.ID]
	store.mu.Unlock()
	if got.Status != campaign.StatusExpired {
		t.Errorf("status = %s, want expired after terminal stage", got.Status)
	}
	if got.StageCursor != 2 {
		t.Errorf("cursor = %d, want 2", got.StageCursor)
	}
}

func TestRunNow_TerminalSubjectsNotScanned(t *testing.T) {
	store := newFakeStore()
	done := activeSubject(2, t0.Add(-400*time.Hour))
	done.Status = campaign.StatusExpired
	store.add(done)

	d := newTestDriver(t, store, &countingNotifier{}, t0)
	stats, err := d.RunNow(context.Background(), "test_campaign")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Scanned != 0 {
		t.Errorf("scanned = %d, want 0 (terminal subjects excluded)", stats.Scanned)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	d := newTestDriver(t, newFakeStore(), &countingNotifier{}, t0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop after context cancellation")
	}
}
