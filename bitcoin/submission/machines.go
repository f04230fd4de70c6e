// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package submission

import (
	"github.com/looplab/fsm"
)

// Transaction states.
const (
	StateDrafted   = "drafted"
	StateSigned    = "signed"
	StateBroadcast = "broadcast"
	StateConfirmed = "confirmed"
	StateFailed    = "failed"
)

// Transaction events.
const (
	EventSign      = "sign"
	EventBroadcast = "broadcast"
	EventAccept    = "accept"
	EventFail      = "fail"
)

// Reveal states.
const (
	StateCommitBroadcast      = "commit_broadcast"
	StateAwaitingConfirmation = "awaiting_confirmation"
	StateRevealBroadcast      = "reveal_broadcast"
	StateDone                 = "done"
)

// Reveal events.
const (
	EventAwait  = "await"
	EventReveal = "reveal"
	EventRetry  = "retry"
	EventFinish = "finish"
)

// newTxMachine returns machine of a single transaction: drafted -> signed -> broadcast -> confirmed,
// any state before confirmed may fail.
func newTxMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateDrafted,
		fsm.Events{
			{Name: EventSign, Src: []string{StateDrafted}, Dst: StateSigned},
			{Name: EventBroadcast, Src: []string{StateSigned}, Dst: StateBroadcast},
			{Name: EventAccept, Src: []string{StateBroadcast}, Dst: StateConfirmed},
			{Name: EventFail, Src: []string{StateDrafted, StateSigned, StateBroadcast}, Dst: StateFailed},
		},
		fsm.Callbacks{},
	)
}

// newRevealMachine returns machine of the etching reveal:
// commit_broadcast -> awaiting_confirmation -> reveal_broadcast -> done,
// failed reveal broadcast returns to awaiting_confirmation.
func newRevealMachine(state string, callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(
		state,
		fsm.Events{
			{Name: EventAwait, Src: []string{StateCommitBroadcast}, Dst: StateAwaitingConfirmation},
			{Name: EventReveal, Src: []string{StateAwaitingConfirmation}, Dst: StateRevealBroadcast},
			{Name: EventRetry, Src: []string{StateRevealBroadcast}, Dst: StateAwaitingConfirmation},
			{Name: EventFinish, Src: []string{StateRevealBroadcast}, Dst: StateDone},
		},
		callbacks,
	)
}
