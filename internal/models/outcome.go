package models

// OutcomeStatus is the settled state of one adapter call.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusEmpty   OutcomeStatus = "empty"
	StatusFailed  OutcomeStatus = "failed"
)

// Outcome is what every source adapter returns: a value, nothing, or a
// failure reason. Adapters never return a bare error for network or payload
// problems; the coordinator only ever sees an Outcome.
type Outcome[T any] struct {
	Status OutcomeStatus `json:"status"`
	Value  T             `json:"value,omitempty"`
	Reason string        `json:"error,omitempty"`

	// Cause keeps the underlying error when a failure was deliberately
	// reported as Empty (alerts, storms, news). Logged, never serialized.
	Cause error `json:"-"`
}

// Success wraps a value.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{Status: StatusSuccess, Value: v}
}

// Empty reports that the source had nothing to show.
func Empty[T any]() Outcome[T] {
	return Outcome[T]{Status: StatusEmpty}
}

// EmptyBecause reports Empty to consumers while keeping the failure that caused it.
func EmptyBecause[T any](cause error) Outcome[T] {
	return Outcome[T]{Status: StatusEmpty, Cause: cause}
}

// Failed reports a failure with a consumer-visible reason.
func Failed[T any](err error) Outcome[T] {
	o := Outcome[T]{Status: StatusFailed, Cause: err}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}

func (o Outcome[T]) OK() bool { return o.Status == StatusSuccess }

// Degraded reports whether the outcome hides a failure (Failed, or Empty with a cause).
func (o Outcome[T]) Degraded() bool {
	return o.Status == StatusFailed || o.Cause != nil
}
