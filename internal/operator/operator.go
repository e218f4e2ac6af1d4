package operator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/twinsync-io/twinsync/internal/journal"
	"github.com/twinsync-io/twinsync/internal/reconciler"
	"github.com/twinsync-io/twinsync/internal/registry"
)

// eventBuffer is the size of the in-flight event queue between the bus
// handler and the dispatch loop.
const eventBuffer = 100

// DeviceReader is the interface the operator needs from the device
// registry: listing for scans, re-fetching before each dispatch attempt.
type DeviceReader interface {
	ListDevices(ctx context.Context, application string) ([]registry.Device, error)
	GetDevice(ctx context.Context, application, name string) (*registry.Device, error)
}

// EventBus is the interface the operator needs from the message bus.
type EventBus interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Fatal() <-chan error
}

// JournalWriter records one entry per finished dispatch. Optional.
type JournalWriter interface {
	Create(ctx context.Context, entry *journal.Entry) error
}

// MetricsWriter records dispatch and scan measurements. Optional.
type MetricsWriter interface {
	WriteReconcileMetric(device, trigger, outcome string, attempts int, duration time.Duration)
	WriteScanMetric(devices, dispatched int, duration time.Duration)
}

// Logger is the minimal logging interface used by the operator.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config controls the operator's event and scan loops.
type Config struct {
	// Application scopes the subscription and all registry calls.
	Application string

	// Topic is the bus subscription topic (plain or shared form).
	Topic string

	// QoS for the bus subscription.
	QoS byte

	// ScanInterval is the period of the full reconciliation scan.
	ScanInterval time.Duration
}

// Operator drives reconciliation from two sources: registry change
// events pushed over the bus, and a periodic full scan of all devices.
//
// Both feed the same dispatcher, which re-fetches the device before
// every attempt and retries until the reconciler reports a terminal
// outcome. Event processing is strictly sequential: one dispatch at a
// time, in arrival order.
type Operator struct {
	reconciler reconciler.Reconciler
	registry   DeviceReader
	bus        EventBus
	journal    JournalWriter
	metrics    MetricsWriter
	config     Config
	logger     Logger

	events chan string

	// done is closed when Run returns so the bus handler never blocks
	// on a queue nobody is draining.
	done     chan struct{}
	stopOnce sync.Once
}

// New creates an Operator.
//
// Parameters:
//   - rec: Per-device reconciler
//   - reader: Registry API client (device reads)
//   - bus: Event-bus client
//   - jw: Dispatch journal (nil to disable)
//   - mw: Metrics sink (nil to disable)
//   - cfg: Operator configuration
//   - logger: Logger (required)
func New(rec reconciler.Reconciler, reader DeviceReader, bus EventBus, jw JournalWriter, mw MetricsWriter, cfg Config, logger Logger) *Operator {
	return &Operator{
		reconciler: rec,
		registry:   reader,
		bus:        bus,
		journal:    jw,
		metrics:    mw,
		config:     cfg,
		logger:     logger,
		events:     make(chan string, eventBuffer),
		done:       make(chan struct{}),
	}
}

// Run subscribes to the event topic and drives the event and scan loops
// until ctx is cancelled or the bus fails fatally.
func (o *Operator) Run(ctx context.Context) error {
	defer o.stopOnce.Do(func() { close(o.done) })

	if err := o.bus.Subscribe(o.config.Topic, o.config.QoS, o.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", o.config.Topic, err)
	}

	o.logger.Info("operator started",
		"application", o.config.Application,
		"topic", o.config.Topic,
		"scan_interval", o.config.ScanInterval,
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { return o.eventLoop(ctx) })
	group.Go(func() error { return o.scanLoop(ctx) })
	group.Go(func() error {
		select {
		case err := <-o.bus.Fatal():
			return fmt.Errorf("event bus failed: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleMessage is the bus callback. It filters and decodes the event
// envelope and queues the device id for sequential dispatch.
//
// A payload that does not decode is logged and skipped: one bad
// producer must not stall the whole event stream.
func (o *Operator) handleMessage(topic string, payload []byte) error {
	event, err := decodeEvent(payload)
	if err != nil {
		o.logger.Warn("skipping malformed event", "topic", topic, "error", err)
		return nil
	}

	if event.Type != RegistryEventType {
		return nil
	}
	if event.Device == "" {
		o.logger.Warn("skipping event without device attribute", "id", event.ID)
		return nil
	}

	select {
	case o.events <- event.Device:
	case <-o.done:
		o.logger.Warn("dropping event, operator stopped", "device", event.Device)
	}
	return nil
}

// eventLoop dispatches queued device ids one at a time.
func (o *Operator) eventLoop(ctx context.Context) error {
	o.logger.Info("processing events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case device := <-o.events:
			if err := o.dispatch(ctx, device, journal.TriggerEvent); err != nil {
				return fmt.Errorf("dispatching %s: %w", device, err)
			}
		}
	}
}

// scanLoop periodically reconciles every device in the application.
// The first pass runs immediately so devices changed while the process
// was down converge at startup without waiting a full interval.
// time.Ticker drops ticks that fire while a scan is still running, so a
// slow pass is followed by one scan, not a burst.
func (o *Operator) scanLoop(ctx context.Context) error {
	o.logger.Info("reconciling devices", "interval", o.config.ScanInterval)

	o.scan(ctx)

	ticker := time.NewTicker(o.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.scan(ctx)
		}
	}
}

// scan lists all devices and dispatches each in turn. A dispatch
// failure aborts the rest of the pass; the devices it skipped are
// covered by the next scan.
func (o *Operator) scan(ctx context.Context) {
	start := time.Now()

	devices, err := o.registry.ListDevices(ctx, o.config.Application)
	if err != nil {
		o.logger.Error("scan: listing devices failed", "error", err)
		return
	}

	dispatched := 0
	for i := range devices {
		if ctx.Err() != nil {
			return
		}
		if err := o.dispatch(ctx, devices[i].Metadata.Name, journal.TriggerScan); err != nil {
			o.logger.Error("scan: dispatch failed, aborting pass",
				"device", devices[i].Metadata.Name,
				"error", err,
			)
			break
		}
		dispatched++
	}

	if o.metrics != nil {
		o.metrics.WriteScanMetric(len(devices), dispatched, time.Since(start))
	}
	o.logger.Debug("scan finished",
		"devices", len(devices),
		"dispatched", dispatched,
		"duration", time.Since(start),
	)
}

// dispatch reconciles one device until a terminal outcome. The device
// is re-fetched before every attempt so each attempt sees current
// state; Retry outcomes loop, errors abort the dispatch.
func (o *Operator) dispatch(ctx context.Context, device, trigger string) error {
	start := time.Now()
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++

		outcome, err := o.attempt(ctx, device)
		if err != nil {
			o.record(ctx, device, trigger, "error", attempts, time.Since(start), err)
			return err
		}

		if outcome == reconciler.OutcomeComplete {
			o.logger.Debug("reconciled device", "device", device, "attempts", attempts)
			o.record(ctx, device, trigger, outcome.String(), attempts, time.Since(start), nil)
			return nil
		}

		o.logger.Debug("retrying device", "device", device, "attempt", attempts)
	}
}

// attempt performs one reconciliation attempt against current state.
func (o *Operator) attempt(ctx context.Context, device string) (reconciler.Outcome, error) {
	current, err := o.registry.GetDevice(ctx, o.config.Application, device)
	if err != nil {
		return reconciler.OutcomeRetry, fmt.Errorf("fetching device: %w", err)
	}

	if current != nil {
		o.logger.Info("handle changed device", "device", device)
		return o.reconciler.Changed(ctx, current)
	}

	o.logger.Info("handle missing device", "device", device)
	return o.reconciler.Missing(ctx, device)
}

// record writes the journal entry and metric for a finished dispatch.
// Failures here are logged, never propagated: observability must not
// break reconciliation.
func (o *Operator) record(ctx context.Context, device, trigger, outcome string, attempts int, duration time.Duration, dispatchErr error) {
	if o.journal != nil {
		entry := &journal.Entry{
			Device:   device,
			Trigger:  trigger,
			Outcome:  outcome,
			Attempts: attempts,
			Duration: duration,
		}
		if dispatchErr != nil {
			entry.Error = dispatchErr.Error()
		}
		if err := o.journal.Create(ctx, entry); err != nil {
			o.logger.Warn("journal write failed", "device", device, "error", err)
		}
	}

	if o.metrics != nil {
		o.metrics.WriteReconcileMetric(device, trigger, outcome, attempts, duration)
	}
}
