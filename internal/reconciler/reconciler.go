package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twinsync-io/twinsync/internal/apiclient"
	"github.com/twinsync-io/twinsync/internal/registry"
	"github.com/twinsync-io/twinsync/internal/template"
	"github.com/twinsync-io/twinsync/internal/twin"
)

// Finalizer is the token placed on a device while twin-side provisioning
// exists or has not yet been confirmed torn down. Its presence is the
// sole persisted signal coordinating multi-step deletion across retries.
const Finalizer = "twin"

// GroupAnnotation is stamped onto the device facet Thing to mark which
// device group it belongs to.
const GroupAnnotation = "io.twinsync/group"

// Outcome is the terminal signal of one reconciliation attempt.
type Outcome int

const (
	// OutcomeComplete means the device's twin state is converged.
	OutcomeComplete Outcome = iota

	// OutcomeRetry means external state changed underneath the attempt;
	// the caller should re-fetch the device and try again.
	OutcomeRetry
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeRetry:
		return "retry"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Reconciler decides and performs the API calls needed to converge one
// device's twin state.
type Reconciler interface {
	// Changed reconciles a device that exists in the registry.
	Changed(ctx context.Context, device *registry.Device) (Outcome, error)

	// Missing cleans up after a device that no longer resolves in the
	// registry.
	Missing(ctx context.Context, device string) (Outcome, error)
}

// TwinClient is the interface the reconciler needs from the twin service.
type TwinClient interface {
	GetThing(ctx context.Context, application, name string) (*twin.Thing, error)
	CreateThing(ctx context.Context, thing *twin.Thing) error
	UpdateThing(ctx context.Context, thing *twin.Thing) error
	DeleteThing(ctx context.Context, application, name string) (bool, error)
}

// RegistryWriter is the interface the reconciler needs from the device
// registry. Reads happen in the dispatcher; the reconciler only writes
// finalizer changes back.
type RegistryWriter interface {
	UpdateDevice(ctx context.Context, device *registry.Device) error
}

// Logger is the minimal logging interface used by the reconciler.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Config controls the reconciler's decisions.
type Config struct {
	// Application scopes every twin and registry call.
	Application string

	// LabelSelector restricts reconciliation to matching devices;
	// devices that stop matching are torn down.
	LabelSelector map[string]string

	// Group is the value written to the device facet's group annotation.
	Group string
}

// TwinReconciler is the production Reconciler: a stateless,
// level-triggered state machine over the twin and registry APIs.
//
// Every invocation recomputes the needed action from current inputs.
// Writes rely on the external stores' optimistic concurrency detection;
// a conflict is always mapped to OutcomeRetry, never an error, which
// makes every mutation idempotent under concurrent reconcilers.
type TwinReconciler struct {
	twin     TwinClient
	registry RegistryWriter
	template *template.ThingTemplate
	config   Config
	logger   Logger

	// now is the clock for fresh synthetic-feature timestamps.
	now func() time.Time
}

// New creates a TwinReconciler.
//
// Parameters:
//   - twinClient: Twin service API client
//   - registryWriter: Registry API client (device writes)
//   - tmpl: Loaded thing template (immutable for process lifetime)
//   - cfg: Reconciler configuration
//   - logger: Logger (nil for none)
func New(twinClient TwinClient, registryWriter RegistryWriter, tmpl *template.ThingTemplate, cfg Config, logger Logger) *TwinReconciler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &TwinReconciler{
		twin:     twinClient,
		registry: registryWriter,
		template: tmpl,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Changed reconciles an existing device.
//
// A device that fails the label selector or carries the soft-deletion
// marker is torn down; everything else is provisioned.
func (r *TwinReconciler) Changed(ctx context.Context, device *registry.Device) (Outcome, error) {
	if !device.MatchesLabels(r.config.LabelSelector) {
		r.logger.Debug("device does not match selector", "device", device.Metadata.Name)
		return r.removing(ctx, device)
	}
	if device.Metadata.IsDeleted() {
		r.logger.Debug("device is soft-deleted", "device", device.Metadata.Name)
		return r.removing(ctx, device)
	}
	return r.ensure(ctx, device)
}

// Missing cleans up the twin state of a device that no longer resolves
// in the registry. There is no device record left to mutate, so no
// finalizer or device-facet action is taken.
func (r *TwinReconciler) Missing(ctx context.Context, device string) (Outcome, error) {
	r.logger.Info("deleting twin state", "device", device)

	if _, err := r.twin.DeleteThing(ctx, r.config.Application, twin.SensorName(device)); err != nil {
		return OutcomeRetry, fmt.Errorf("deleting sensor thing: %w", err)
	}
	return OutcomeComplete, nil
}

// ensure provisions the twin state of a live, matching device.
func (r *TwinReconciler) ensure(ctx context.Context, device *registry.Device) (Outcome, error) {
	r.logger.Debug("ensuring twin state", "device", device.Metadata.Name)

	device = device.DeepCopy()

	// The finalizer write is a separate commit point: it returns Retry
	// so the next attempt re-fetches the device with the finalizer
	// visible before any Thing work happens.
	if device.Metadata.EnsureFinalizer(Finalizer) {
		err := r.registry.UpdateDevice(ctx, device)
		switch {
		case err == nil:
			return OutcomeRetry, nil
		case apiclient.IsConflict(err):
			return OutcomeRetry, nil
		default:
			return OutcomeRetry, fmt.Errorf("adding finalizer: %w", err)
		}
	}

	outcome, err := r.ensureSensor(ctx, device)
	if err != nil || outcome == OutcomeRetry {
		return outcome, err
	}

	return r.ensureDevice(ctx, device)
}

// ensureSensor creates or syncs the sensor facet Thing.
func (r *TwinReconciler) ensureSensor(ctx context.Context, device *registry.Device) (Outcome, error) {
	name := twin.SensorName(device.Metadata.Name)

	thing, err := r.twin.GetThing(ctx, r.config.Application, name)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("fetching sensor thing: %w", err)
	}

	if thing == nil {
		thing = twin.NewThing(r.config.Application, name)
		SyncTemplate(r.template, thing, r.now())

		err := r.twin.CreateThing(ctx, thing)
		switch {
		case err == nil:
			return OutcomeComplete, nil
		case apiclient.IsConflict(err):
			// Concurrently created by another reconciler.
			return OutcomeRetry, nil
		default:
			return OutcomeRetry, fmt.Errorf("creating sensor thing: %w", err)
		}
	}

	before, err := json.Marshal(thing)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("encoding sensor thing: %w", err)
	}
	SyncTemplate(r.template, thing, r.now())
	after, err := json.Marshal(thing)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("encoding sensor thing: %w", err)
	}
	if bytes.Equal(before, after) {
		// Already consistent with the template, nothing to write.
		return OutcomeComplete, nil
	}

	err = r.twin.UpdateThing(ctx, thing)
	switch {
	case err == nil:
		return OutcomeComplete, nil
	case apiclient.IsConflict(err), apiclient.IsNotFound(err):
		// Concurrently mutated or removed.
		return OutcomeRetry, nil
	default:
		return OutcomeRetry, fmt.Errorf("updating sensor thing: %w", err)
	}
}

// ensureDevice annotates the device facet Thing. The facet is
// provisioned by another actor; if it is not there yet, the attempt
// retries until it appears.
func (r *TwinReconciler) ensureDevice(ctx context.Context, device *registry.Device) (Outcome, error) {
	thing, err := r.twin.GetThing(ctx, r.config.Application, device.Metadata.Name)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("fetching device thing: %w", err)
	}
	if thing == nil {
		// Not provisioned upstream yet.
		return OutcomeRetry, nil
	}

	if thing.Metadata.Annotations[GroupAnnotation] == r.config.Group {
		// Already annotated, nothing to write.
		return OutcomeComplete, nil
	}

	thing.SetAnnotation(GroupAnnotation, r.config.Group)

	err = r.twin.UpdateThing(ctx, thing)
	switch {
	case err == nil:
		return OutcomeComplete, nil
	case apiclient.IsConflict(err), apiclient.IsNotFound(err):
		return OutcomeRetry, nil
	default:
		return OutcomeRetry, fmt.Errorf("updating device thing: %w", err)
	}
}

// removing tears down the twin state and releases the finalizer.
func (r *TwinReconciler) removing(ctx context.Context, device *registry.Device) (Outcome, error) {
	if _, err := r.Missing(ctx, device.Metadata.Name); err != nil {
		return OutcomeRetry, err
	}

	device = device.DeepCopy()
	if !device.Metadata.RemoveFinalizer(Finalizer) {
		// Already released.
		return OutcomeComplete, nil
	}

	err := r.registry.UpdateDevice(ctx, device)
	switch {
	case err == nil, apiclient.IsNotFound(err):
		return OutcomeComplete, nil
	case apiclient.IsConflict(err):
		return OutcomeRetry, nil
	default:
		return OutcomeRetry, fmt.Errorf("removing finalizer: %w", err)
	}
}
