package registry

import (
	"slices"
	"time"
)

// Device is a device record owned by the registry.
//
// The operator reads devices and only ever writes back finalizer
// changes; everything else is managed externally.
type Device struct {
	Metadata Metadata       `json:"metadata"`
	Spec     map[string]any `json:"spec,omitempty"`
	Status   map[string]any `json:"status,omitempty"`
}

// Metadata is the registry-managed identity and bookkeeping of a device.
type Metadata struct {
	Application       string            `json:"application"`
	Name              string            `json:"name"`
	UID               string            `json:"uid,omitempty"`
	CreationTimestamp time.Time         `json:"creationTimestamp,omitempty"`
	ResourceVersion   string            `json:"resourceVersion,omitempty"`
	Generation        int64             `json:"generation,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`

	// DeletionTimestamp is the soft-deletion marker. A non-nil value
	// means the device is being deleted and pending finalizer removal.
	DeletionTimestamp *time.Time `json:"deletionTimestamp,omitempty"`

	// Finalizers block final deletion until every token is removed.
	Finalizers []string `json:"finalizers,omitempty"`
}

// IsDeleted reports whether the device carries the soft-deletion marker.
func (m *Metadata) IsDeleted() bool {
	return m.DeletionTimestamp != nil
}

// HasFinalizer reports whether the finalizer token is present.
func (m *Metadata) HasFinalizer(finalizer string) bool {
	return slices.Contains(m.Finalizers, finalizer)
}

// EnsureFinalizer adds the finalizer token if absent.
//
// Returns:
//   - bool: true if the token was added (the device needs persisting)
func (m *Metadata) EnsureFinalizer(finalizer string) bool {
	if m.HasFinalizer(finalizer) {
		return false
	}
	m.Finalizers = append(m.Finalizers, finalizer)
	return true
}

// RemoveFinalizer removes the finalizer token if present.
//
// Returns:
//   - bool: true if the token was removed (the device needs persisting)
func (m *Metadata) RemoveFinalizer(finalizer string) bool {
	idx := slices.Index(m.Finalizers, finalizer)
	if idx < 0 {
		return false
	}
	m.Finalizers = slices.Delete(m.Finalizers, idx, idx+1)
	return true
}

// MatchesLabels reports whether the device carries every label in
// selector with the exact value. An empty selector matches everything.
func (d *Device) MatchesLabels(selector map[string]string) bool {
	for k, v := range selector {
		if d.Metadata.Labels[k] != v {
			return false
		}
	}
	return true
}

// DeepCopy creates an independent copy of the Device so reconciliation
// attempts can mutate metadata without affecting the caller's record.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Metadata.Labels = copyStringMap(d.Metadata.Labels)
	cpy.Metadata.Annotations = copyStringMap(d.Metadata.Annotations)
	if d.Metadata.Finalizers != nil {
		cpy.Metadata.Finalizers = slices.Clone(d.Metadata.Finalizers)
	}
	if d.Metadata.DeletionTimestamp != nil {
		ts := *d.Metadata.DeletionTimestamp
		cpy.Metadata.DeletionTimestamp = &ts
	}
	cpy.Spec = copyAnyMap(d.Spec)
	cpy.Status = copyAnyMap(d.Status)
	return &cpy
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cpy := make(map[string]string, len(m))
	for k, v := range m {
		cpy[k] = v
	}
	return cpy
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = v
	}
	return cpy
}
