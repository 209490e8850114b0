package domain

// Outcome tells the transport what to do with a processed message.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable asks for redelivery.
	OutcomeRetryable
	// OutcomeFatal means redelivery cannot help; the message is dead-lettered.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one escalation event.
type Result struct {
	Outcome Outcome
	Err     error
}

// Success reports a processed event.
func Success() Result {
	return Result{Outcome: OutcomeSuccess}
}

// Retry reports a failure that redelivery may fix.
func Retry(err error) Result {
	return Result{Outcome: OutcomeRetryable, Err: err}
}

// Fatal reports a failure that redelivery cannot fix.
func Fatal(err error) Result {
	return Result{Outcome: OutcomeFatal, Err: err}
}

// IsSuccess reports whether the event was processed.
func (r Result) IsSuccess() bool {
	return r.Outcome == OutcomeSuccess
}

func (r Result) Error() string {
	if r.Err == nil {
		return r.Outcome.String()
	}
	return r.Outcome.String() + ": " + r.Err.Error()
}
