// Package fsm defines a finite state machine
// The machine can be rendered as a mermaid.js graph for debugging
package fsm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-errors/errors"
)

type (
	// StateID represents the Identifier of the state
	StateID int8
	// StateIDSlice represents the list of state identifiers
	StateIDSlice []StateID
)

func (v StateIDSlice) Len() int {
	return len(v)
}

func (v StateIDSlice) Less(i, j int) bool {
	return v[i] < v[j]
}

func (v StateIDSlice) Swap(i, j int) {
	v[i], v[j] = v[j], v[i]
}

// Transition indicates an arrow in the state graph
type Transition struct {
	// To represents the to-be-new state
	To StateID
	// Description is what type of message the arrow gets in the graph
	Description string
}

// State represents a single node in the graph
type State struct {
	// Transitions indicates which out arrows this node has
	Transitions []Transition
}

// States is the map from state ID to states
type States map[StateID]State

// Callback is called after a transition with the old state, the new state and the data
// It returns whether or not the transition was handled
type Callback func(oldState StateID, newState StateID, data interface{}) bool

// FSM represents the total graph
type FSM struct {
	// States is the map from state ID to states
	States States

	// Current is the current state represented by the identifier
	Current StateID

	// StateCallback is the function ran when a transition occurs
	StateCallback Callback

	// GetStateName gets the name of a state as a string
	GetStateName func(StateID) string

	initial StateID
}

// NewFSM creates a state machine in the initial state 'current'
func NewFSM(current StateID, states States, callback Callback, nameGen func(StateID) string) FSM {
	return FSM{
		States:        states,
		Current:       current,
		StateCallback: callback,
		GetStateName:  nameGen,
		initial:       current,
	}
}

func (fsm *FSM) name(id StateID) string {
	if fsm.GetStateName == nil {
		return fmt.Sprintf("%d", id)
	}
	return fsm.GetStateName(id)
}

// InState returns whether or not the state machine is in the given 'check' state
func (fsm *FSM) InState(check StateID) bool {
	return check == fsm.Current
}

// HasTransition checks whether or not the state machine has a transition to the given 'check' state
func (fsm *FSM) HasTransition(check StateID) bool {
	for _, t := range fsm.States[fsm.Current].Transitions {
		if t.To == check {
			return true
		}
	}
	return false
}

// CheckTransition returns an error if the machine cannot go to 'desired'
// Going back to the initial state is always allowed
func (fsm *FSM) CheckTransition(desired StateID) error {
	if desired == fsm.initial && fsm.Current != fsm.initial {
		return nil
	}
	if !fsm.HasTransition(desired) {
		return errors.Errorf("fsm invalid transition attempt from '%s' to '%s'", fsm.name(fsm.Current), fsm.name(desired))
	}
	return nil
}

// GoTransitionRequired transitions the state machine to a new state with associated state data 'data'
// If this transition is not handled by the callback, it returns an error
func (fsm *FSM) GoTransitionRequired(newState StateID, data interface{}) error {
	oldState := fsm.Current
	handled, err := fsm.GoTransitionWithData(newState, data)
	if err != nil {
		return err
	}
	if !handled {
		return errors.Errorf("fsm failed transition from '%s' to '%s', is this required transition handled?", fsm.name(oldState), fsm.name(newState))
	}
	return nil
}

// GoTransitionWithData transitions the state machine toward the 'newState' with associated state data 'data'
// It returns whether or not the transition is handled by the callback
func (fsm *FSM) GoTransitionWithData(newState StateID, data interface{}) (bool, error) {
	if err := fsm.CheckTransition(newState); err != nil {
		return false, err
	}
	oldState := fsm.Current
	fsm.Current = newState
	if fsm.StateCallback == nil {
		return false, nil
	}
	return fsm.StateCallback(oldState, newState, data), nil
}

// GoTransition is GoTransitionWithData with an empty string as data
func (fsm *FSM) GoTransition(newState StateID) (bool, error) {
	return fsm.GoTransitionWithData(newState, "")
}

// GenerateGraph generates a graph suitable to be converted by the mermaid.js tool
// The current state is highlighted
func (fsm *FSM) GenerateGraph() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	sorted := make(StateIDSlice, 0, len(fsm.States))
	for id := range fsm.States {
		sorted = append(sorted, id)
	}
	sort.Sort(sorted)
	for _, id := range sorted {
		fill := "white"
		if id == fsm.Current {
			fill = "cyan"
		}
		name := fsm.name(id)
		fmt.Fprintf(&b, "\nstyle %s fill:%s\n", name, fill)
		for _, t := range fsm.States[id].Transitions {
			fmt.Fprintf(&b, "%s(%s) -->|%s| %s\n", name, name, t.Description, fsm.name(t.To))
		}
	}
	return b.String()
}
