package pipeline

import (
	"github.com/qmuntal/stateless"
)

type State string

const (
	StatePending     State = "PENDING"
	StateFetched     State = "FETCHED"
	StateLanded      State = "LANDED"
	StateTransformed State = "TRANSFORMED"
	StateLogged      State = "LOGGED"
	StateFailed      State = "FAILED"
)

type Trigger string

const (
	TriggerFetched     Trigger = "fetched"
	TriggerLanded      Trigger = "landed"
	TriggerTransformed Trigger = "transformed"
	TriggerLogged      Trigger = "logged"
	TriggerFail        Trigger = "fail"
)

// Finished reports whether s is terminal.
func (s State) Finished() bool {
	return s == StateLogged || s == StateFailed
}

// NewRunStateMachine returns the run lifecycle PENDING -> FETCHED -> LANDED -> TRANSFORMED -> LOGGED.
// FAILED is reachable from every non-terminal state; no state can be skipped.
func NewRunStateMachine() *stateless.StateMachine {
	machine := stateless.NewStateMachine(StatePending)

	machine.Configure(StatePending).
		Permit(TriggerFetched, StateFetched).
		Permit(TriggerFail, StateFailed)

	machine.Configure(StateFetched).
		Permit(TriggerLanded, StateLanded).
		Permit(TriggerFail, StateFailed)

	machine.Configure(StateLanded).
		Permit(TriggerTransformed, StateTransformed).
		Permit(TriggerFail, StateFailed)

	machine.Configure(StateTransformed).
		Permit(TriggerLogged, StateLogged).
		Permit(TriggerFail, StateFailed)

	return machine
}

// stageTriggers maps a completed stage to the transition it causes.
var stageTriggers = map[string]Trigger{
	StageFetch:     TriggerFetched,
	StageLoad:      TriggerLanded,
	StageTransform: TriggerTransformed,
	StageLog:       TriggerLogged,
}
