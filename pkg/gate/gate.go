// Package gate decides where a run goes after the Evaluator and the Player.
// Gates are pure functions of the state and the iteration limits.
package gate

import (
	"fmt"

	"github.com/zen-systems/gameforge/pkg/state"
)

// Target names the stage a gate routes to.
type Target string

const (
	TargetPlanner               Target = "planner"
	TargetImplementationPlanner Target = "implementation_planner"
	TargetCoder                 Target = "coder"
	TargetDone                  Target = "done"
)

const (
	DefaultMaxDesignIterations = 3
	DefaultMaxCodeIterations   = 2
)

// Limits caps the two review loops.
type Limits struct {
	MaxDesignIterations int `json:"max_design_iterations"`
	MaxCodeIterations   int `json:"max_code_iterations"`
}

// DefaultLimits returns the standard caps.
func DefaultLimits() Limits {
	return Limits{
		MaxDesignIterations: DefaultMaxDesignIterations,
		MaxCodeIterations:   DefaultMaxCodeIterations,
	}
}

// Validate rejects caps below one.
func (l Limits) Validate() error {
	if l.MaxDesignIterations < 1 {
		return fmt.Errorf("max design iterations must be at least 1, got %d", l.MaxDesignIterations)
	}
	if l.MaxCodeIterations < 1 {
		return fmt.Errorf("max code iterations must be at least 1, got %d", l.MaxCodeIterations)
	}
	return nil
}

// Decision is a gate outcome. Forced marks a cap-driven advance
// (gate exhaustion): the run moves on without approval.
type Decision struct {
	Gate     string `json:"gate"`
	Next     Target `json:"next"`
	Forced   bool   `json:"forced"`
	Terminal bool   `json:"terminal"`
	Reason   string `json:"reason"`
}

// Design routes after the Evaluator. afterApproval is the stage that
// follows an accepted design (the implementation planner, or the coder
// when planning is disabled).
func Design(s state.State, l Limits, afterApproval Target) Decision {
	if afterApproval == "" {
		afterApproval = TargetImplementationPlanner
	}
	switch {
	case s.DesignApproved:
		return Decision{Gate: "design", Next: afterApproval, Reason: "design approved"}
	case s.DesignIteration >= l.MaxDesignIterations:
		return Decision{
			Gate:   "design",
			Next:   afterApproval,
			Forced: true,
			Reason: fmt.Sprintf("design not approved after %d iterations, advancing", s.DesignIteration),
		}
	default:
		return Decision{
			Gate:   "design",
			Next:   TargetPlanner,
			Reason: fmt.Sprintf("design revision %d of %d", s.DesignIteration+1, l.MaxDesignIterations),
		}
	}
}

// Ship routes after the Player.
func Ship(s state.State, l Limits) Decision {
	switch {
	case s.ShipApproved:
		return Decision{Gate: "ship", Next: TargetDone, Terminal: true, Reason: "game approved"}
	case s.CodeIteration >= l.MaxCodeIterations:
		return Decision{
			Gate:     "ship",
			Next:     TargetDone,
			Terminal: true,
			Forced:   true,
			Reason:   fmt.Sprintf("game not approved after %d iterations, shipping best effort", s.CodeIteration),
		}
	default:
		return Decision{
			Gate:   "ship",
			Next:   TargetCoder,
			Reason: fmt.Sprintf("code revision %d of %d", s.CodeIteration+1, l.MaxCodeIterations),
		}
	}
}
