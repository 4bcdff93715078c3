package domain

// Entity is anything a session can track. Implementations must be pointers.
type Entity interface {
	EntityKey() any
}

// Versioned entities carry an optimistic concurrency token.
type Versioned interface {
	GetVersion() int64
	SetVersion(version int64)
}
