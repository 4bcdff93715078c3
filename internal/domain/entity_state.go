package domain

// EntityState is the change-tracking state of an entity within a session.
type EntityState int

const (
	StateDetached EntityState = iota
	StateUnchanged
	StateAdded
	StateModified
	StateDeleted
)

func (s EntityState) String() string {
	switch s {
	case StateUnchanged:
		return "unchanged"
	case StateAdded:
		return "added"
	case StateModified:
		return "modified"
	case StateDeleted:
		return "deleted"
	default:
		return "detached"
	}
}

// Pending reports whether an entity in this state has changes to flush.
func (s EntityState) Pending() bool {
	return s == StateAdded || s == StateModified || s == StateDeleted
}
