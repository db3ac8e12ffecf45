// Package remotedata models the outcome of loading one piece of remote data
// and aggregates several outcomes into a single readiness status.
package remotedata

// Status is the load state of a remote result.
type Status string

const (
	StatusPending  Status = "pending"
	StatusError    Status = "error"
	StatusComplete Status = "complete"
)

// Statuser is implemented by anything that reports a load status.
type Statuser interface {
	LoadStatus() Status
}

// Result holds a remotely loaded value together with its load status.
type Result[T any] struct {
	Status Status `json:"status"`
	Value  T      `json:"value,omitempty"`
	Err    error  `json:"-"`
}

func Pending[T any]() Result[T] {
	return Result[T]{Status: StatusPending}
}

func Complete[T any](v T) Result[T] {
	return Result[T]{Status: StatusComplete, Value: v}
}

func Failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusError, Err: err}
}

// From builds a complete result when err is nil and a failed one otherwise.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Failed[T](err)
	}
	return Complete(v)
}

func (r Result[T]) LoadStatus() Status {
	if r.Status == "" {
		return StatusPending
	}
	return r.Status
}

func (r Result[T]) IsComplete() bool { return r.LoadStatus() == StatusComplete }

// GroupStatus reports error if any result failed, pending if any result is
// still loading, and complete otherwise. An empty group is complete.
func GroupStatus(results ...Statuser) Status {
	pending := false
	for _, r := range results {
		if r == nil {
			pending = true
			continue
		}
		switch r.LoadStatus() {
		case StatusError:
			return StatusError
		case StatusPending:
			pending = true
		}
	}
	if pending {
		return StatusPending
	}
	return StatusComplete
}
