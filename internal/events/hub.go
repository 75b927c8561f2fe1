// Package events delivers session state changes to the single registered
// listener of each kind.
package events

import (
	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleprint/internal/device"
)

// Kind identifies an event channel.
type Kind string

const (
	AdapterStateChanged    Kind = "adapter_state_changed"
	ScanResultsChanged     Kind = "scan_results_changed"
	ConnectionStateChanged Kind = "connection_state_changed"
)

// Kinds lists every valid Kind.
var Kinds = []Kind{AdapterStateChanged, ScanResultsChanged, ConnectionStateChanged}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	switch k {
	case AdapterStateChanged, ScanResultsChanged, ConnectionStateChanged:
		return true
	}
	return false
}

// Event is the payload handed to a Listener. Only the field matching Kind is set.
type Event struct {
	Kind      Kind
	Available bool                // AdapterStateChanged
	Devices   []device.DeviceInfo // ScanResultsChanged, full registry snapshot
	Connected bool                // ConnectionStateChanged
}

// Listener receives events synchronously on the emitting goroutine.
type Listener func(Event)

// Hub holds at most one Listener per Kind.
type Hub struct {
	listeners *hashmap.Map[string, Listener]
	logger    *logrus.Logger
}

// NewHub creates an empty hub. A nil logger falls back to logrus.New().
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		listeners: hashmap.New[string, Listener](),
		logger:    logger,
	}
}

// Listen registers cb for kind. It returns false, keeping the existing
// listener, when kind already has one or when kind or cb is invalid.
func (h *Hub) Listen(kind Kind, cb Listener) bool {
	if !kind.Valid() || cb == nil {
		h.logger.WithField("kind", kind).Warn("Rejected invalid listener registration")
		return false
	}
	if !h.listeners.Insert(string(kind), cb) {
		h.logger.WithField("kind", kind).Warn("Listener already registered")
		return false
	}
	h.logger.WithField("kind", kind).Debug("Listener registered")
	return true
}

// RemoveListen unregisters the listener of kind and reports whether one existed.
func (h *Hub) RemoveListen(kind Kind) bool {
	if !h.listeners.Del(string(kind)) {
		h.logger.WithField("kind", kind).Debug("No listener to remove")
		return false
	}
	return true
}

// Emit delivers e to the listener registered for e.Kind at call time, if any.
func (h *Hub) Emit(e Event) {
	cb, ok := h.listeners.Get(string(e.Kind))
	if !ok {
		return
	}
	cb(e)
}

func (h *Hub) EmitAdapterState(available bool) {
	h.Emit(Event{Kind: AdapterStateChanged, Available: available})
}

func (h *Hub) EmitScanResults(devices []device.DeviceInfo) {
	h.Emit(Event{Kind: ScanResultsChanged, Devices: devices})
}

func (h *Hub) EmitConnectionState(connected bool) {
	h.Emit(Event{Kind: ConnectionStateChanged, Connected: connected})
}
