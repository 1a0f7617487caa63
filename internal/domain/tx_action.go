package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ActionKind identifies a user-submitted trade action.
type ActionKind int

// Action kinds
const (
	ActionSwap ActionKind = iota
	ActionLimit
	ActionSend
	ActionCancel
	ActionFill
	ActionWrap
	ActionUnwrap
	ActionApprove
)

// String returns the action name.
func (k ActionKind) String() string {
	switch k {
	case ActionSwap:
		return "swap"
	case ActionLimit:
		return "limit"
	case ActionSend:
		return "send"
	case ActionCancel:
		return "cancel"
	case ActionFill:
		return "fill"
	case ActionWrap:
		return "wrap"
	case ActionUnwrap:
		return "unwrap"
	case ActionApprove:
		return "approve"
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// TxStatus is the lifecycle of a submitted action.
type TxStatus int

// Transaction statuses
const (
	TxPending TxStatus = iota
	TxConfirmed
	TxFailed
)

// StatusText renders the user-visible status line for an action.
func StatusText(k ActionKind, s TxStatus) string {
	var verb string
	switch k {
	case ActionSwap:
		verb = "Swap"
	case ActionLimit:
		verb = "Limit order"
	case ActionSend:
		verb = "Transfer"
	case ActionCancel:
		verb = "Order cancellation"
	case ActionFill:
		verb = "Order fill"
	case ActionWrap:
		verb = "Wrap"
	case ActionUnwrap:
		verb = "Unwrap"
	case ActionApprove:
		verb = "Approval"
	default:
		verb = k.String()
	}

	switch s {
	case TxPending:
		return verb + " pending"
	case TxConfirmed:
		return verb + " confirmed"
	case TxFailed:
		return verb + " failed"
	}
	return verb
}

// ErrInsufficientBalance marks a submission rejected for lack of funds.
var ErrInsufficientBalance = errors.New("insufficient balance")

// TxError is a failed trade submission.
type TxError struct {
	Action ActionKind
	Err    error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// insufficientMarkers are provider message fragments meaning the account
// cannot cover the amount or gas.
var insufficientMarkers = []string{
	"insufficient balance",
	"insufficient funds",
	"exceeds balance",
	"transfer amount exceeds",
}

// ClassifyTxError wraps a provider error for action k. Messages matching a
// known insufficient-balance fragment wrap ErrInsufficientBalance.
func ClassifyTxError(k ActionKind, err error) *TxError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, m := range insufficientMarkers {
		if strings.Contains(msg, m) {
			return &TxError{Action: k, Err: fmt.Errorf("%w: %v", ErrInsufficientBalance, err)}
		}
	}
	return &TxError{Action: k, Err: err}
}
