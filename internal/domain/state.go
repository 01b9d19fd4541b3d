package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a status change outside the state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists every allowed status edge. Anything absent is rejected.
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {
		TransactionStatusAuthorized,
		TransactionStatusFailed,
		TransactionStatusAuthDeclined,
		TransactionStatusCancelled,
	},
	TransactionStatusAuthorized: {
		TransactionStatusCaptured,
		TransactionStatusCancelled,
	},
	TransactionStatusCaptured: {
		TransactionStatusSettled,
		TransactionStatusRefunded,
		TransactionStatusDisputed,
	},
	TransactionStatusSettled: {
		TransactionStatusRefunded,
		TransactionStatusDisputed,
	},
	TransactionStatusDisputed: {
		TransactionStatusChargeback,
		TransactionStatusCaptured,
		TransactionStatusSettled,
	},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError names the rejected edge. It unwraps to ErrInvalidTransition.
type TransitionError struct {
	From TransactionStatus
	To   TransactionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s not allowed", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
