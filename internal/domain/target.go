package domain

// Target names a persistence target a unit of work can open sessions against.
type Target string

const TargetDefault Target = "default"
