package model

// OnlineState is the client's last known connectivity to the backend.
type OnlineState int

const (
	// OnlineStateUnknown is the state before the first connection attempt settles.
	OnlineStateUnknown OnlineState = iota
	// OnlineStateOnline means the watch stream is connected.
	OnlineStateOnline
	// OnlineStateOffline means the client gave up reaching the backend for now.
	OnlineStateOffline
)

func (s OnlineState) String() string {
	switch s {
	case OnlineStateOnline:
		return "online"
	case OnlineStateOffline:
		return "offline"
	default:
		return "unknown"
	}
}
