package orchestrator

// Decision is the notification path selected from which reports exist.
type Decision int

const (
	DecisionNeither Decision = iota
	DecisionOnlyA
	DecisionOnlyB
	DecisionBoth
)

func (d Decision) String() string {
	switch d {
	case DecisionBoth:
		return "both"
	case DecisionOnlyA:
		return "only_a"
	case DecisionOnlyB:
		return "only_b"
	case DecisionNeither:
		return "neither"
	default:
		return "unknown"
	}
}

// Classify maps report presence to a decision. It has no side effects.
func Classify(aPresent, bPresent bool) Decision {
	switch {
	case aPresent && bPresent:
		return DecisionBoth
	case aPresent:
		return DecisionOnlyA
	case bPresent:
		return DecisionOnlyB
	default:
		return DecisionNeither
	}
}

// Archives reports whether any report is archived under the decision.
func (d Decision) Archives() bool { return d != DecisionNeither }
