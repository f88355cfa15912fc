package gatewaysync

import (
	"encoding/json"
	"fmt"
)

// Outcome classifies how one task run ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is what a handler hands back to the dispatcher. Exactly one of
// Response (success) or Error (failure) is meaningful.
type Result struct {
	Response json.RawMessage
	Error    string
	Outcome  Outcome
}

// Success completes the task and stores response as response_data.
func Success(response json.RawMessage) Result {
	return Result{Outcome: OutcomeSuccess, Response: response}
}

// Retryable fails the task and lets the backoff schedule another attempt.
func Retryable(msg string) Result {
	return Result{Outcome: OutcomeRetryable, Error: msg}
}

// Terminal fails the task with no further automatic attempts.
func Terminal(msg string) Result {
	return Result{Outcome: OutcomeTerminal, Error: msg}
}

// internalError formats unexpected failures the way operators search for them.
func internalError(v interface{}) Result {
	return Retryable(fmt.Sprintf("Internal error: %v", v))
}
