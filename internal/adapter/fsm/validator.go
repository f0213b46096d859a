package fsm

import (
	"context"
	"errors"
	"slices"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// Validator implements domain.TransitionValidator using looplab/fsm.
//
// looplab/fsm machines carry their current state, so a throwaway machine is
// built per call, seeded with the tenant's stored status. The event table is
// computed once from domain.Transitions.
type Validator struct {
	events loopfsm.Events
}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{events: eventTable(domain.Transitions)}
}

// eventTable folds transitions sharing an event and destination into one
// EventDesc with several sources: activate from PENDING and from SUSPENDED
// both land on ACTIVE.
func eventTable(transitions []domain.Transition) loopfsm.Events {
	var out loopfsm.Events
	for _, tr := range transitions {
		idx := slices.IndexFunc(out, func(d loopfsm.EventDesc) bool {
			return d.Name == string(tr.Event) && d.Dst == string(tr.Dst)
		})
		if idx < 0 {
			out = append(out, loopfsm.EventDesc{Name: string(tr.Event), Dst: string(tr.Dst)})
			idx = len(out) - 1
		}
		out[idx].Src = append(out[idx].Src, string(tr.Src))
	}
	return out
}

// Apply checks if the given event is valid from the current status and
// returns the destination status. Returns a domain.TransitionError if
// the transition is not allowed.
func (v *Validator) Apply(ctx context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	machine := loopfsm.NewFSM(string(current), v.events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{Event: event, Current: current}
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}

// Available lists the events that may be applied from the current status.
func (v *Validator) Available(current domain.Status) []domain.Event {
	machine := loopfsm.NewFSM(string(current), v.events, nil)
	names := machine.AvailableTransitions()
	slices.Sort(names)

	out := make([]domain.Event, len(names))
	for i, n := range names {
		out[i] = domain.Event(n)
	}
	return out
}
