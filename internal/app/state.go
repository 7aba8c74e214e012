package app

// RunState is the phase the run view is in.
type RunState int

const (
	Running RunState = iota
	Cancelling
	Finished
)
