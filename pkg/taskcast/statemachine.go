package taskcast

// transitions enumerates every legal (from, to) pair. Terminal statuses have no entries.
var transitions = map[TaskStatus]map[TaskStatus]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusTimeout:   true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether a transition from one status to another is legal. Self-transitions
// are never legal, and terminal statuses accept no transitions at all.
func CanTransition(from, to TaskStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// IsTerminal reports whether status is one of the absorbing terminal states.
func IsTerminal(status TaskStatus) bool {
	return IsTerminalStatus(status)
}
