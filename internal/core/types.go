package core

// DeferredState is the state of a promise held by a Deferred.
type DeferredState int

const (
	DeferredPending DeferredState = iota
	DeferredFulfilled
	DeferredRejected
)

func (s DeferredState) String() string {
	switch s {
	case DeferredPending:
		return "pending"
	case DeferredFulfilled:
		return "fulfilled"
	case DeferredRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// HeapStats holds a point-in-time reading of engine memory.
type HeapStats struct {
	UsedBytes  uint64 // bytes held by live objects
	TotalBytes uint64 // bytes the engine has allocated from the system
}
