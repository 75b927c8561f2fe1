package session

import "fmt"

// State is the coarse lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateAdapterOpen
	StateScanning
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAdapterOpen:
		return "adapter_open"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
