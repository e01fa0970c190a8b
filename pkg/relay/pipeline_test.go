package relay

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tinyland-inc/relayx/pkg/bus"
	"github.com/tinyland-inc/relayx/pkg/config"
	"github.com/tinyland-inc/relayx/pkg/deliver"
	"github.com/tinyland-inc/relayx/pkg/filter"
	"github.com/tinyland-inc/relayx/pkg/mapping"
	"github.com/tinyland-inc/relayx/pkg/pairs"
)

// fakeDeliverer records calls and returns scripted results.
type fakeDeliverer struct {
	mu       sync.Mutex
	fail     error
	next     int
	delivers []string
	edits    []string
	deletes  []string
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ deliver.Target, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.next++
	f.delivers = append(f.delivers, content)
	return "dest-" + string(rune('0'+f.next)), nil
}

func (f *fakeDeliverer) Edit(_ context.Context, _ deliver.Target, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.edits = append(f.edits, messageID+":"+content)
	return nil
}

func (f *fakeDeliverer) Delete(_ context.Context, _ deliver.Target, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.deletes = append(f.deletes, messageID)
	return nil
}

func (f *fakeDeliverer) deliverCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivers)
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) TrapAlert(_ context.Context, pairName, trapKind string, _ bus.SourceEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, pairName+":"+trapKind)
	return nil
}

func testPipeline(t *testing.T, fd *fakeDeliverer, fa *fakeAlerter) (*Pipeline, *mapping.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Pairs["gold"] = config.PairConfig{
		SourceChannel: "@src",
		Destination:   "discord:https://discord.com/api/webhooks/111/aaa",
		Status:        config.StatusActive,
	}
	cfg.Blocklist.Global.Text = []string{"casino"}

	store := mapping.NewStore(filepath.Join(t.TempDir(), "mappings.json"))

	var alerter Alerter
	if fa != nil {
		alerter = fa
	}
	p, err := New(Options{
		Bus:        bus.NewEventBus(),
		Registry:   pairs.NewRegistry(cfg),
		Filter:     filter.New(cfg.Blocklist.Global.Text),
		Store:      store,
		Deliverers: deliver.Set{config.DestDiscord: fd},
		Alerter:    alerter,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, store
}

func newEvent(text string) bus.SourceEvent {
	return bus.SourceEvent{
		Kind:       bus.EventNew,
		Session:    "reader-1",
		Channel:    bus.ChannelRef{Kind: bus.ChannelByHandle, Identifier: "@src"},
		ChatID:     "-100555",
		MessageID:  "msg-1",
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

func TestProcess_AllowedMessageDeliveredAndMapped(t *testing.T) {
	fd := &fakeDeliverer{}
	p, store := testPipeline(t, fd, nil)

	res := p.Process(context.Background(), newEvent("hello world"))
	if res.Outcome != OutcomeDelivered {
		t.Fatalf("expected delivered, got %+v", res)
	}
	if fd.deliverCount() != 1 {
		t.Errorf("expected exactly one delivery, got %d", fd.deliverCount())
	}

	rec, ok := store.Get("msg-1")
	if !ok {
		t.Fatal("mapping not recorded after successful delivery")
	}
	if rec.EditCount != 0 || rec.PairName != "gold" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestProcess_TrappedNotDeliveredButAlerted(t *testing.T) {
	fd := &fakeDeliverer{}
	fa := &fakeAlerter{}
	p, store := testPipeline(t, fd, fa)

	res := p.Process(context.Background(), newEvent("possible leak here"))
	if res.Outcome != OutcomeTrapped {
		t.Fatalf("expected trapped, got %+v", res)
	}
	if res.Detail != filter.TrapLeakWarning {
		t.Errorf("expected leak_warning, got %q", res.Detail)
	}
	if fd.deliverCount() != 0 {
		t.Error("trapped message must not be delivered")
	}
	if len(fa.alerts) != 1 || fa.alerts[0] != "gold:leak_warning" {
		t.Errorf("expected one alert, got %v", fa.alerts)
	}
	if store.Len() != 0 {
		t.Error("trapped message must not be mapped")
	}
}

func TestProcess_BlockedNotDeliveredNoAlert(t *testing.T) {
	fd := &fakeDeliverer{}
	fa := &fakeAlerter{}
	p, _ := testPipeline(t, fd, fa)

	res := p.Process(context.Background(), newEvent("free casino spins"))
	if res.Outcome != OutcomeBlocked {
		t.Fatalf("expected blocked, got %+v", res)
	}
	if fd.deliverCount() != 0 {
		t.Error("blocked message must not be delivered")
	}
	if len(fa.alerts) != 0 {
		t.Error("blocked message must not alert")
	}
}

func TestProcess_NoPair(t *testing.T) {
	fd := &fakeDeliverer{}
	p, _ := testPipeline(t, fd, nil)

	ev := newEvent("hello")
	ev.Channel = bus.ChannelRef{Kind: bus.ChannelByHandle, Identifier: "@elsewhere"}
	res := p.Process(context.Background(), ev)
	if res.Outcome != OutcomeNoPair {
		t.Fatalf("expected no pair, got %+v", res)
	}
}

func TestProcess_UnsupportedChannel(t *testing.T) {
	fd := &fakeDeliverer{}
	p, _ := testPipeline(t, fd, nil)

	ev := newEvent("hello")
	ev.Channel = bus.ChannelRef{Kind: bus.ChannelUnknown}
	if res := p.Process(context.Background(), ev); res.Outcome != OutcomeNoPair {
		t.Fatalf("expected no pair for unsupported channel, got %+v", res)
	}
}

func TestProcess_EmptyTextDropped(t *testing.T) {
	fd := &fakeDeliverer{}
	p, _ := testPipeline(t, fd, nil)

	if res := p.Process(context.Background(), newEvent("")); res.Outcome != OutcomeEmpty {
		t.Fatalf("expected dropped_empty, got %+v", res)
	}
	if fd.deliverCount() != 0 {
		t.Error("empty message must not be delivered")
	}
}

func TestProcess_DeliveryFailureNotMapped(t *testing.T) {
	fd := &fakeDeliverer{fail: errors.New("503 from destination")}
	p, store := testPipeline(t, fd, nil)

	res := p.Process(context.Background(), newEvent("hello"))
	if res.Outcome != OutcomeDeliveryFailed {
		t.Fatalf("expected delivery_failed, got %+v", res)
	}
	if store.Len() != 0 {
		t.Error("mapping must only exist when delivery succeeded")
	}
}

func TestProcess_EditCorrelation(t *testing.T) {
	fd := &fakeDeliverer{}
	p, store := testPipeline(t, fd, nil)

	p.Process(context.Background(), newEvent("original"))

	edit := newEvent("revised")
	edit.Kind = bus.EventEdited
	res := p.Process(context.Background(), edit)
	if res.Outcome != OutcomeEditCorrelated {
		t.Fatalf("expected edit_correlated, got %+v", res)
	}
	if len(fd.edits) != 1 {
		t.Fatalf("expected one destination edit, got %d", len(fd.edits))
	}
	rec, _ := store.Get("msg-1")
	if rec.EditCount != 1 {
		t.Errorf("edit count = %d", rec.EditCount)
	}
}

func TestProcess_EditCapAtThreshold(t *testing.T) {
	fd := &fakeDeliverer{}
	p, store := testPipeline(t, fd, nil)

	p.Process(context.Background(), newEvent("original"))

	edit := newEvent("revised")
	edit.Kind = bus.EventEdited
	for i := 0; i < 5; i++ {
		p.Process(context.Background(), edit)
	}

	rec, _ := store.Get("msg-1")
	if rec.EditCount != 3 {
		t.Errorf("edit count should cap at 3, got %d", rec.EditCount)
	}
	if len(fd.edits) != 3 {
		t.Errorf("destination should see 3 edits, got %d", len(fd.edits))
	}

	res := p.Process(context.Background(), edit)
	if res.Outcome != OutcomeEditCapped {
		t.Errorf("expected edit_capped, got %+v", res)
	}
}

func TestProcess_EditUnmapped(t *testing.T) {
	fd := &fakeDeliverer{}
	p, _ := testPipeline(t, fd, nil)

	edit := newEvent("revised")
	edit.Kind = bus.EventEdited
	if res := p.Process(context.Background(), edit); res.Outcome != OutcomeEditUnmapped {
		t.Fatalf("expected edit_unmapped, got %+v", res)
	}
	if len(fd.edits) != 0 {
		t.Error("unmapped edit must not touch the destination")
	}
}

func TestProcess_DeleteCorrelation(t *testing.T) {
	fd := &fakeDeliverer{}
	p, store := testPipeline(t, fd, nil)

	p.Process(context.Background(), newEvent("original"))

	del := newEvent("")
	del.Kind = bus.EventDeleted
	res := p.Process(context.Background(), del)
	if res.Outcome != OutcomeDeleteCorrelated {
		t.Fatalf("expected delete_correlated, got %+v", res)
	}
	if len(fd.deletes) != 1 {
		t.Fatalf("expected one destination delete, got %d", len(fd.deletes))
	}
	if _, ok := store.Get("msg-1"); ok {
		t.Error("record should be gone after delete correlation")
	}
}

func TestRun_ConsumesBus(t *testing.T) {
	fd := &fakeDeliverer{}
	cfg := config.DefaultConfig()
	cfg.Pairs["gold"] = config.PairConfig{
		SourceChannel: "@src",
		Destination:   "discord:https://discord.com/api/webhooks/111/aaa",
		Status:        config.StatusActive,
	}

	eb := bus.NewEventBus()
	store := mapping.NewStore(filepath.Join(t.TempDir(), "mappings.json"))

	var mu sync.Mutex
	var outcomes []Outcome
	p, err := New(Options{
		Bus:        eb,
		Registry:   pairs.NewRegistry(cfg),
		Filter:     filter.New(nil),
		Store:      store,
		Deliverers: deliver.Set{config.DestDiscord: fd},
		Workers:    2,
		Observer: func(r Result) {
			mu.Lock()
			outcomes = append(outcomes, r.Outcome)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Run(ctx)

	for i := 0; i < 3; i++ {
		ev := newEvent("hello")
		ev.MessageID = "msg-" + string(rune('a'+i))
		if err := eb.Publish(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(outcomes)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out, saw %d outcomes", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	eb.Close()
	p.Wait()

	if store.Len() != 3 {
		t.Errorf("expected 3 mappings, got %d", store.Len())
	}
	if got := p.Stats().Snapshot()["delivered"]; got != 3 {
		t.Errorf("stats delivered = %d", got)
	}
}
