package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"aerofarm/internal/models"

	"github.com/rs/zerolog"
)

type stubStore struct {
	ruleLists  [][]models.AutomationRule
	fetchCalls int
	fetchErr   error

	devices map[int64]*models.Device

	persisted  []map[int64]time.Time
	persistErr error
}

func (s *stubStore) ActiveRules(_ context.Context) ([]models.AutomationRule, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.fetchCalls < len(s.ruleLists) {
		rules := s.ruleLists[s.fetchCalls]
		s.fetchCalls++
		return rules, nil
	}
	return nil, nil
}

func (s *stubStore) DeviceByID(_ context.Context, id int64) (*models.Device, error) {
	return s.devices[id], nil
}

func (s *stubStore) PersistRuleExecutions(ctx context.Context, executed map[int64]time.Time) error {
	// Refuse cancelled contexts the way a real store driver would.
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.persistErr != nil {
		return s.persistErr
	}
	copied := make(map[int64]time.Time, len(executed))
	for k, v := range executed {
		copied[k] = v
	}
	s.persisted = append(s.persisted, copied)
	return nil
}

type stubSnapshots struct {
	snaps map[int64]*models.SensorSnapshot
	err   error
}

func (s *stubSnapshots) LatestSnapshot(_ context.Context, deviceID int64) (*models.SensorSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snaps[deviceID], nil
}

func deviceN(id int64) *models.Device {
	return &models.Device{ID: id, Name: fmt.Sprintf("Rack %d", id), MacAddress: fmt.Sprintf("MAC-%d", id)}
}

func timerRuleFor(id, deviceID int64, priority int) models.AutomationRule {
	r := timerRule(nil)
	r.ID = id
	r.DeviceID = deviceID
	r.Priority = priority
	return r
}

func newTestEngine(store *stubStore, snaps SnapshotSource, pub *stubPublisher) *Engine {
	dispatcher := NewDispatcher(pub, &stubAudit{}, zerolog.Nop())
	evaluator := NewEvaluator(DefaultPolicy())
	return New(store, snaps, evaluator, dispatcher, Options{
		Now: func() time.Time { return monday },
	}, zerolog.Nop())
}

func TestCycleFailureIsolation(t *testing.T) {
	store := &stubStore{
		ruleLists: [][]models.AutomationRule{{
			timerRuleFor(1, 1, 10),
			timerRuleFor(2, 2, 5),
			timerRuleFor(3, 3, 1),
		}},
		devices: map[int64]*models.Device{1: deviceN(1), 2: deviceN(2), 3: deviceN(3)},
	}
	pub := &stubPublisher{failTopics: map[string]bool{"devices/MAC-2/control": true}}

	eng := newTestEngine(store, &stubSnapshots{}, pub)
	eng.runCycle(context.Background())

	if len(store.persisted) != 1 {
		t.Fatalf("expected one persistence batch, got %d", len(store.persisted))
	}
	batch := store.persisted[0]
	if _, ok := batch[1]; !ok {
		t.Error("expected rule 1 to have its execution persisted")
	}
	if _, ok := batch[2]; ok {
		t.Error("expected rule 2's execution to remain unpersisted after a failed dispatch")
	}
	if _, ok := batch[3]; !ok {
		t.Error("expected rule 3 to fire despite rule 2's failure")
	}
}

func TestCyclePreservesPriorityOrder(t *testing.T) {
	// The store returns rules already ordered by priority; the engine must
	// dispatch in that order.
	store := &stubStore{
		ruleLists: [][]models.AutomationRule{{
			timerRuleFor(1, 1, 10),
			timerRuleFor(2, 2, 5),
			timerRuleFor(3, 3, 1),
		}},
		devices: map[int64]*models.Device{1: deviceN(1), 2: deviceN(2), 3: deviceN(3)},
	}
	pub := &stubPublisher{}

	eng := newTestEngine(store, &stubSnapshots{}, pub)
	eng.runCycle(context.Background())

	want := []string{"devices/MAC-1/control", "devices/MAC-2/control", "devices/MAC-3/control"}
	if len(pub.published) != len(want) {
		t.Fatalf("expected %d publishes, got %d", len(want), len(pub.published))
	}
	for i, topic := range want {
		if pub.published[i].topic != topic {
			t.Errorf("publish %d: got %q, want %q", i, pub.published[i].topic, topic)
		}
	}
}

func TestCycleRuleListIsSnapshotted(t *testing.T) {
	// A rule deactivated after the cycle's fetch still completes this cycle
	// and disappears from the next.
	store := &stubStore{
		ruleLists: [][]models.AutomationRule{
			{timerRuleFor(1, 1, 1)},
			{}, // rule deactivated before the second cycle's fetch
		},
		devices: map[int64]*models.Device{1: deviceN(1)},
	}
	pub := &stubPublisher{}

	eng := newTestEngine(store, &stubSnapshots{}, pub)
	eng.runCycle(context.Background())
	eng.runCycle(context.Background())

	if len(pub.published) != 1 {
		t.Fatalf("expected exactly one publish across both cycles, got %d", len(pub.published))
	}
}

func TestCycleFetchFailureAborts(t *testing.T) {
	store := &stubStore{fetchErr: errors.New("connection refused")}
	pub := &stubPublisher{}

	eng := newTestEngine(store, &stubSnapshots{}, pub)
	eng.runCycle(context.Background())

	if len(pub.published) != 0 {
		t.Fatal("expected no dispatches when the rule fetch fails")
	}
	if len(store.persisted) != 0 {
		t.Fatal("expected no persistence when the rule fetch fails")
	}
}

func TestCycleSkipsUnresolvableDevices(t *testing.T) {
	noMac := deviceN(2)
	noMac.MacAddress = "  "
	store := &stubStore{
		ruleLists: [][]models.AutomationRule{{
			timerRuleFor(1, 99, 1), // device missing entirely
			timerRuleFor(2, 2, 1),  // device without broker identity
		}},
		devices: map[int64]*models.Device{2: noMac},
	}
	pub := &stubPublisher{}

	eng := newTestEngine(store, &stubSnapshots{}, pub)
	eng.runCycle(context.Background())

	if len(pub.published) != 0 {
		t.Fatal("expected no dispatches for unresolvable devices")
	}
	if len(store.persisted) != 0 {
		t.Fatal("expected no execution timestamps for skipped rules")
	}
}

func TestCycleThresholdRuleReadsSnapshot(t *testing.T) {
	rule := thresholdRule("ph", "<", 5.5)
	rule.ID = 1
	rule.DeviceID = 1
	store := &stubStore{
		ruleLists: [][]models.AutomationRule{{rule}},
		devices:   map[int64]*models.Device{1: deviceN(1)},
	}
	snaps := &stubSnapshots{snaps: map[int64]*models.SensorSnapshot{1: phSnapshot(5.0)}}
	pub := &stubPublisher{}

	eng := newTestEngine(store, snaps, pub)
	eng.runCycle(context.Background())

	if len(pub.published) != 1 {
		t.Fatalf("expected the threshold rule to fire, got %d publishes", len(pub.published))
	}
}

func TestCycleSnapshotLookupFailureSkipsRule(t *testing.T) {
	rule := thresholdRule("ph", "<", 5.5)
	rule.ID = 1
	rule.DeviceID = 1
	store := &stubStore{
		ruleLists: [][]models.AutomationRule{{rule}},
		devices:   map[int64]*models.Device{1: deviceN(1)},
	}
	snaps := &stubSnapshots{err: errors.New("cache and store down")}
	pub := &stubPublisher{}

	eng := newTestEngine(store, snaps, pub)
	eng.runCycle(context.Background())

	if len(pub.published) != 0 {
		t.Fatal("expected a threshold rule with no reachable snapshot to skip")
	}
}

func TestCycleCancellationStopsBetweenRules(t *testing.T) {
	store := &stubStore{
		ruleLists: [][]models.AutomationRule{{
			timerRuleFor(1, 1, 10),
			timerRuleFor(2, 2, 5),
			timerRuleFor(3, 3, 1),
		}},
		devices: map[int64]*models.Device{1: deviceN(1), 2: deviceN(2), 3: deviceN(3)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	pub := &stubPublisher{onPublish: cancel} // shutdown arrives mid-dispatch

	eng := newTestEngine(store, &stubSnapshots{}, pub)
	eng.runCycle(ctx)

	// The in-flight dispatch completes; the remaining rules do not run.
	if len(pub.published) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(pub.published))
	}
	if len(store.persisted) != 1 || len(store.persisted[0]) != 1 {
		t.Fatal("expected the completed rule's execution to be persisted")
	}
	if _, ok := store.persisted[0][1]; !ok {
		t.Fatal("expected rule 1's execution timestamp in the batch")
	}
}

func TestCyclePersistFailureIsTolerated(t *testing.T) {
	store := &stubStore{
		ruleLists:  [][]models.AutomationRule{{timerRuleFor(1, 1, 1)}},
		devices:    map[int64]*models.Device{1: deviceN(1)},
		persistErr: errors.New("write timeout"),
	}
	pub := &stubPublisher{}

	eng := newTestEngine(store, &stubSnapshots{}, pub)
	// Must not panic or abort; the command is already out.
	eng.runCycle(context.Background())

	if len(pub.published) != 1 {
		t.Fatalf("expected the dispatch to stand, got %d publishes", len(pub.published))
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	store := &stubStore{}
	eng := New(store, &stubSnapshots{}, NewEvaluator(DefaultPolicy()),
		NewDispatcher(&stubPublisher{}, &stubAudit{}, zerolog.Nop()),
		Options{CycleInterval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}
