package reconciler

import (
	"time"

	"github.com/twinsync-io/twinsync/internal/template"
	"github.com/twinsync-io/twinsync/internal/twin"
)

// SyncTemplate applies the template to a Thing's declared sub-state.
//
// For every family (synthetic features, on-changed handlers,
// on-deleting handlers, timers) it performs one three-way pass:
//   - template key missing from the Thing: a default entry is created,
//     runtime fields at their zero values
//   - template key present: only the definition-controlled fields
//     (type, code, period) are overwritten
//   - Thing key absent from the template: the entry is removed
//
// The handler and timer registries keep the insertion order of
// pre-existing entries; new entries append in template order. Synthetic
// features live in a plain map and carry no ordering. now stamps the
// LastUpdate of newly created synthetic features.
//
// Applying the same template twice is a no-op on the second pass.
func SyncTemplate(tmpl *template.ThingTemplate, thing *twin.Thing, now time.Time) {
	thing.SyntheticState = syncPlain(&tmpl.Synthetics, thing.SyntheticState,
		func(def template.Synthetic) twin.SyntheticFeature {
			return twin.SyntheticFeature{
				SyntheticType: def.Type(),
				LastUpdate:    now,
			}
		},
		func(def template.Synthetic, current *twin.SyntheticFeature) {
			current.SyntheticType = def.Type()
		},
	)

	syncOrdered(&tmpl.Reconciliation.Changed, &thing.Reconciliation.Changed,
		func(def template.Code) twin.Changed {
			return twin.Changed{Code: def.Type()}
		},
		func(def template.Code, current *twin.Changed) {
			current.Code = def.Type()
		},
	)

	syncOrdered(&tmpl.Reconciliation.Deleting, &thing.Reconciliation.Deleting,
		func(def template.Code) twin.Deleting {
			return twin.Deleting{Code: def.Type()}
		},
		func(def template.Code, current *twin.Deleting) {
			current.Code = def.Type()
		},
	)

	syncOrdered(&tmpl.Reconciliation.Timers, &thing.Reconciliation.Timers,
		func(def template.TimerDef) twin.Timer {
			return twin.Timer{
				Code:   def.Code.Type(),
				Period: def.Period,
			}
		},
		func(def template.TimerDef, current *twin.Timer) {
			current.Code = def.Code.Type()
			current.Period = def.Period
		},
	)
}

// syncPlain runs the three-way pass against a plain keyed map.
// It returns the map so a nil target can be allocated on first use.
func syncPlain[D, R any](
	defs *twin.OrderedMap[D],
	target map[string]R,
	create func(D) R,
	update func(D, *R),
) map[string]R {
	if target == nil && defs.Len() == 0 {
		return nil
	}
	if target == nil {
		target = make(map[string]R, defs.Len())
	}

	stale := make(map[string]struct{}, len(target))
	for key := range target {
		stale[key] = struct{}{}
	}

	defs.Range(func(name string, def D) bool {
		if current, ok := target[name]; ok {
			update(def, &current)
			target[name] = current
		} else {
			target[name] = create(def)
		}
		delete(stale, name)
		return true
	})

	for key := range stale {
		delete(target, key)
	}
	return target
}

// syncOrdered runs the three-way pass against an insertion-ordered map.
func syncOrdered[D, R any](
	defs *twin.OrderedMap[D],
	target *twin.OrderedMap[R],
	create func(D) R,
	update func(D, *R),
) {
	stale := make(map[string]struct{}, target.Len())
	for _, key := range target.Keys() {
		stale[key] = struct{}{}
	}

	defs.Range(func(name string, def D) bool {
		if current, ok := target.Get(name); ok {
			update(def, &current)
			target.Set(name, current)
		} else {
			target.Set(name, create(def))
		}
		delete(stale, name)
		return true
	})

	for key := range stale {
		target.Delete(key)
	}
}
