package billing

// transitions is the closed bill lifecycle graph. PAID and CANCELLED are
// terminal; a refund is a separate REFUNDED row, never a transition on the
// original bill.
var transitions = map[Status]map[Status]bool{
	StatusNew: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusPaid:      true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusFailed: {
		StatusProcessing: true,
	},
}

// CanTransition reports whether a bill may move from one status to another.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// ValidateTransition returns an InvalidStatusChangeError when the move is
// not permitted.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &InvalidStatusChangeError{From: from, To: to}
	}
	return nil
}

// Terminal reports whether a status admits no further transitions.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}
