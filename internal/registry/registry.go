// Package registry keeps the devices reported by discovery, deduplicated by
// DeviceID and ordered by first sighting.
package registry

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bleprint/internal/device"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices *orderedmap.OrderedMap[string, device.DeviceInfo]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{devices: orderedmap.New[string, device.DeviceInfo]()}
}

// Upsert inserts d or replaces the entry with the same DeviceID in place.
// It reports whether d was a new device. Reports without a DeviceID are ignored.
func (r *Registry) Upsert(d device.DeviceInfo) bool {
	if d.IsEmpty() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, present := r.devices.Set(d.DeviceID, d)
	return !present
}

// Merge upserts every device in batch and reports how many were new.
func (r *Registry) Merge(batch []device.DeviceInfo) int {
	added := 0
	for _, d := range batch {
		if r.Upsert(d) {
			added++
		}
	}
	return added
}

// Get returns the device with the given ID.
func (r *Registry) Get(id string) (device.DeviceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Get(id)
}

// All returns a snapshot of the devices in first-sighting order.
func (r *Registry) All() []device.DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]device.DeviceInfo, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Len()
}

// Clear drops every device.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = orderedmap.New[string, device.DeviceInfo]()
}

// IsAnonymous reports whether d advertises neither a name nor a local name.
func IsAnonymous(d device.DeviceInfo) bool {
	return d.Name == "" && d.LocalName == ""
}

// Named drops anonymous devices from batch, keeping order.
func Named(batch []device.DeviceInfo) []device.DeviceInfo {
	out := make([]device.DeviceInfo, 0, len(batch))
	for _, d := range batch {
		if !IsAnonymous(d) {
			out = append(out, d)
		}
	}
	return out
}
