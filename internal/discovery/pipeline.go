package discovery

import (
	"fmt"

	"github.com/eduvpn/eduvpn-core/internal/fsm"
)

// The states of a refresh
const (
	StateIdle fsm.StateID = iota
	StateFetchingSignature
	StateVerifyingSignature
	StateFetchingDocument
	StateVerifyingDocument
	StateDecoding
	StateReconciling
	StateDone
	StateFailed
)

// StateName returns the name of a refresh state
func StateName(s fsm.StateID) string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFetchingSignature:
		return "FetchingSignature"
	case StateVerifyingSignature:
		return "VerifyingSignature"
	case StateFetchingDocument:
		return "FetchingDocument"
	case StateVerifyingDocument:
		return "VerifyingDocument"
	case StateDecoding:
		return "Decoding"
	case StateReconciling:
		return "Reconciling"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

func step(to fsm.StateID, desc string) []fsm.Transition {
	return []fsm.Transition{
		{To: to, Description: desc},
		{To: StateFailed, Description: "Error"},
	}
}

func newMachine(cb fsm.Callback) fsm.FSM {
	states := fsm.States{
		StateIdle: {
			Transitions: []fsm.Transition{{To: StateFetchingSignature, Description: "Refresh"}},
		},
		StateFetchingSignature:  {Transitions: step(StateVerifyingSignature, "Signature fetched")},
		StateVerifyingSignature: {Transitions: step(StateFetchingDocument, "Signature decoded")},
		StateFetchingDocument:   {Transitions: step(StateVerifyingDocument, "Document fetched")},
		StateVerifyingDocument:  {Transitions: step(StateDecoding, "Document verified")},
		StateDecoding:           {Transitions: step(StateReconciling, "Document decoded")},
		StateReconciling:        {Transitions: step(StateDone, "Committed")},
		StateDone:               {},
		StateFailed:             {},
	}
	return fsm.NewFSM(StateIdle, states, cb, StateName)
}

// Graph returns the mermaid graph of a refresh
func Graph() string {
	m := newMachine(nil)
	return m.GenerateGraph()
}
