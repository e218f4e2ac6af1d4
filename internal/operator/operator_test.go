package operator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/twinsync-io/twinsync/internal/journal"
	"github.com/twinsync-io/twinsync/internal/reconciler"
	"github.com/twinsync-io/twinsync/internal/registry"
)

// ─── Fake Collaborators ─────────────────────────────────────────────────────

type call struct {
	method string // "changed" or "missing"
	device string
}

// fakeReconciler scripts per-device outcome sequences.
type fakeReconciler struct {
	mu    sync.Mutex
	calls []call

	// outcomes holds the remaining outcomes per device; the last one
	// repeats once the script runs out.
	outcomes map[string][]reconciler.Outcome
	errs     map[string]error
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{
		outcomes: make(map[string][]reconciler.Outcome),
		errs:     make(map[string]error),
	}
}

func (f *fakeReconciler) next(method, device string) (reconciler.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{method: method, device: device})
	if err := f.errs[device]; err != nil {
		return reconciler.OutcomeRetry, err
	}

	script := f.outcomes[device]
	switch len(script) {
	case 0:
		return reconciler.OutcomeComplete, nil
	case 1:
		return script[0], nil
	default:
		f.outcomes[device] = script[1:]
		return script[0], nil
	}
}

func (f *fakeReconciler) Changed(_ context.Context, device *registry.Device) (reconciler.Outcome, error) {
	return f.next("changed", device.Metadata.Name)
}

func (f *fakeReconciler) Missing(_ context.Context, device string) (reconciler.Outcome, error) {
	return f.next("missing", device)
}

func (f *fakeReconciler) callLog() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// fakeRegistry serves a fixed device set.
type fakeRegistry struct {
	mu      sync.Mutex
	devices map[string]*registry.Device
	listErr error
}

func newFakeRegistry(names ...string) *fakeRegistry {
	devices := make(map[string]*registry.Device, len(names))
	for _, name := range names {
		devices[name] = &registry.Device{Metadata: registry.Metadata{
			Application: "factory-a",
			Name:        name,
		}}
	}
	return &fakeRegistry{devices: devices}
}

func (f *fakeRegistry) ListDevices(_ context.Context, _ string) ([]registry.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []registry.Device
	for _, d := range f.devices {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeRegistry) GetDevice(_ context.Context, _, name string) (*registry.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[name], nil
}

// fakeBus captures the subscription and lets tests inject messages.
type fakeBus struct {
	mu      sync.Mutex
	topic   string
	qos     byte
	handler func(topic string, payload []byte) error
	fatal   chan error
}

func newFakeBus() *fakeBus {
	return &fakeBus{fatal: make(chan error, 1)}
}

func (f *fakeBus) Subscribe(topic string, qos byte, handler func(string, []byte) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic = topic
	f.qos = qos
	f.handler = handler
	return nil
}

func (f *fakeBus) Fatal() <-chan error {
	return f.fatal
}

func (f *fakeBus) deliver(t *testing.T, payload string) {
	t.Helper()
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		t.Fatal("no subscription registered")
	}
	if err := handler(f.topic, []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

// fakeJournal collects entries.
type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (f *fakeJournal) Create(_ context.Context, entry *journal.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeJournal) all() []journal.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]journal.Entry(nil), f.entries...)
}

type testLogger struct{ t *testing.T }

func (l testLogger) Debug(msg string, args ...any) { l.t.Logf("DEBUG %s %v", msg, args) }
func (l testLogger) Info(msg string, args ...any)  { l.t.Logf("INFO %s %v", msg, args) }
func (l testLogger) Warn(msg string, args ...any)  { l.t.Logf("WARN %s %v", msg, args) }
func (l testLogger) Error(msg string, args ...any) { l.t.Logf("ERROR %s %v", msg, args) }

func testOperator(t *testing.T, rec *fakeReconciler, reg *fakeRegistry, bus *fakeBus, jw JournalWriter) *Operator {
	t.Helper()
	return New(rec, reg, bus, jw, nil, Config{
		Application:  "factory-a",
		Topic:        "app/factory-a",
		QoS:          1,
		ScanInterval: time.Hour, // effectively disabled unless the test waits
	}, testLogger{t})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// ─── Event Handling ─────────────────────────────────────────────────────────

func TestHandleMessage_Filtering(t *testing.T) {
	rec := newFakeReconciler()
	// Empty registry: the startup scan dispatches nothing, and the one
	// valid event below resolves as a missing device.
	reg := newFakeRegistry()
	bus := newFakeBus()
	op := testOperator(t, rec, reg, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		op.Run(ctx)
	}()
	waitFor(t, time.Second, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	})

	// Wrong type: no dispatch.
	bus.deliver(t, `{"specversion":"1.0","id":"e1","type":"io.twinsync.telemetry.v1","device":"dev-1"}`)
	// Missing device attribute: skipped.
	bus.deliver(t, `{"specversion":"1.0","id":"e2","type":"io.twinsync.registry.v1"}`)
	// Malformed payload: logged and skipped, stream keeps going.
	bus.deliver(t, `{not json`)
	// Valid event: dispatched.
	bus.deliver(t, `{"specversion":"1.0","id":"e3","type":"io.twinsync.registry.v1","device":"dev-1"}`)

	waitFor(t, time.Second, func() bool { return len(rec.callLog()) == 1 })

	calls := rec.callLog()
	if calls[0].method != "missing" || calls[0].device != "dev-1" {
		t.Errorf("call = %+v, want missing dev-1", calls[0])
	}

	cancel()
	<-done
}

func TestDispatch_RetriesUntilComplete(t *testing.T) {
	rec := newFakeReconciler()
	rec.outcomes["dev-1"] = []reconciler.Outcome{
		reconciler.OutcomeRetry,
		reconciler.OutcomeRetry,
		reconciler.OutcomeComplete,
	}
	reg := newFakeRegistry("dev-1")
	jw := &fakeJournal{}
	op := testOperator(t, rec, reg, newFakeBus(), jw)

	if err := op.dispatch(context.Background(), "dev-1", journal.TriggerEvent); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}

	if got := len(rec.callLog()); got != 3 {
		t.Errorf("reconciler calls = %d, want 3", got)
	}

	entries := jw.all()
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Device != "dev-1" || entry.Trigger != journal.TriggerEvent {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Outcome != "complete" || entry.Attempts != 3 {
		t.Errorf("outcome = %q attempts = %d, want complete/3", entry.Outcome, entry.Attempts)
	}
}

func TestDispatch_MissingDevice(t *testing.T) {
	rec := newFakeReconciler()
	reg := newFakeRegistry() // empty: every device is missing
	op := testOperator(t, rec, reg, newFakeBus(), nil)

	if err := op.dispatch(context.Background(), "ghost", journal.TriggerEvent); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}

	calls := rec.callLog()
	if len(calls) != 1 || calls[0].method != "missing" {
		t.Errorf("calls = %+v, want one missing call", calls)
	}
}

func TestDispatch_ErrorRecorded(t *testing.T) {
	rec := newFakeReconciler()
	rec.errs["dev-1"] = errors.New("twin service down")
	reg := newFakeRegistry("dev-1")
	jw := &fakeJournal{}
	op := testOperator(t, rec, reg, newFakeBus(), jw)

	if err := op.dispatch(context.Background(), "dev-1", journal.TriggerScan); err == nil {
		t.Fatal("dispatch() error = nil, want reconciler error")
	}

	entries := jw.all()
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(entries))
	}
	if entries[0].Outcome != "error" || entries[0].Error == "" {
		t.Errorf("entry = %+v, want error outcome with message", entries[0])
	}
}

// ─── Scanning ───────────────────────────────────────────────────────────────

func TestScan_DispatchesAllDevices(t *testing.T) {
	rec := newFakeReconciler()
	reg := newFakeRegistry("dev-1", "dev-2", "dev-3")
	jw := &fakeJournal{}
	op := testOperator(t, rec, reg, newFakeBus(), jw)

	op.scan(context.Background())

	if got := len(rec.callLog()); got != 3 {
		t.Errorf("reconciler calls = %d, want 3", got)
	}
	for _, entry := range jw.all() {
		if entry.Trigger != journal.TriggerScan {
			t.Errorf("trigger = %q, want scan", entry.Trigger)
		}
	}
}

func TestScan_AbortsPassOnDispatchError(t *testing.T) {
	rec := newFakeReconciler()
	rec.errs["dev-1"] = errors.New("boom")
	rec.errs["dev-2"] = errors.New("boom")
	rec.errs["dev-3"] = errors.New("boom")
	reg := newFakeRegistry("dev-1", "dev-2", "dev-3")
	op := testOperator(t, rec, reg, newFakeBus(), nil)

	// Must return, not panic or loop: the failing pass is abandoned.
	op.scan(context.Background())

	if got := len(rec.callLog()); got != 1 {
		t.Errorf("reconciler calls = %d, want 1 (pass aborted)", got)
	}
}

func TestScan_ListErrorSkipsPass(t *testing.T) {
	rec := newFakeReconciler()
	reg := newFakeRegistry("dev-1")
	reg.listErr = errors.New("registry unreachable")
	op := testOperator(t, rec, reg, newFakeBus(), nil)

	op.scan(context.Background())

	if got := len(rec.callLog()); got != 0 {
		t.Errorf("reconciler calls = %d, want 0", got)
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestRun_ScansAtStartup(t *testing.T) {
	rec := newFakeReconciler()
	reg := newFakeRegistry("dev-1", "dev-2")
	jw := &fakeJournal{}
	// ScanInterval is an hour: only the immediate startup pass can
	// dispatch within the test's deadline.
	op := testOperator(t, rec, reg, newFakeBus(), jw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		op.Run(ctx)
	}()

	waitFor(t, time.Second, func() bool { return len(rec.callLog()) == 2 })

	for _, entry := range jw.all() {
		if entry.Trigger != journal.TriggerScan {
			t.Errorf("trigger = %q, want scan", entry.Trigger)
		}
	}

	cancel()
	<-done
}

func TestHandleMessage_AfterShutdownDoesNotBlock(t *testing.T) {
	rec := newFakeReconciler()
	bus := newFakeBus()
	op := testOperator(t, rec, newFakeRegistry(), bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		op.Run(ctx)
	}()
	waitFor(t, time.Second, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	})

	cancel()
	<-done

	// Flood well past the queue capacity: with nothing draining it,
	// every send must still return instead of parking the handler.
	bus.mu.Lock()
	handler := bus.handler
	bus.mu.Unlock()

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		payload := []byte(`{"specversion":"1.0","id":"e1","type":"io.twinsync.registry.v1","device":"dev-1"}`)
		for i := 0; i < eventBuffer+10; i++ {
			handler("app/factory-a", payload) //nolint:errcheck // Handler never errors
		}
	}()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("bus handler blocked after operator shutdown")
	}
}

func TestRun_StopsOnBusFatal(t *testing.T) {
	rec := newFakeReconciler()
	reg := newFakeRegistry()
	bus := newFakeBus()
	op := testOperator(t, rec, reg, bus, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- op.Run(context.Background()) }()
	waitFor(t, time.Second, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	})

	bus.fatal <- errors.New("reconnect attempts exhausted")

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Run() = nil, want bus fatal error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on bus fatal")
	}
}

func TestRun_CleanShutdownOnCancel(t *testing.T) {
	rec := newFakeReconciler()
	reg := newFakeRegistry()
	bus := newFakeBus()
	op := testOperator(t, rec, reg, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- op.Run(ctx) }()
	waitFor(t, time.Second, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	})

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
}
