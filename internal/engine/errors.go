package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidModel wraps every load-time failure.
	ErrInvalidModel = errors.New("engine: invalid model")

	ErrPastEnd = errors.New("engine: no timesteps left")
	ErrClosed  = errors.New("engine: model has been released")
	ErrCycle   = errors.New("engine: network contains a cycle")
)

// BalanceError reports a node whose state became physically impossible
// during a step.
type BalanceError struct {
	Index   int
	Period  time.Time
	Node    string
	Message string
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("timestep %d (%s) node %q: %s", e.Index, e.Period.Format("2006-01-02"), e.Node, e.Message)
}
