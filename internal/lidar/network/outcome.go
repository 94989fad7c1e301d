package network

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Source.Next. Implementations wrap them with
// detail; callers classify with errors.Is or OutcomeOf.
var (
	// ErrNoData means nothing was ready to read. It is not a failure.
	ErrNoData = errors.New("no data")
	// ErrPollTimeout means a blocking wait expired without data.
	ErrPollTimeout = errors.New("poll timeout")
	// ErrRecoverable covers malformed or mis-sized packets and transient
	// receive errors. The packet is counted and dropped.
	ErrRecoverable = errors.New("recoverable input error")
	// ErrFatal means the socket or file is unusable. The lidar stops.
	ErrFatal = errors.New("fatal input error")
	// ErrEndOfStream is returned by replay sources in read-once mode after
	// the last record.
	ErrEndOfStream = errors.New("end of stream")
)

// Outcome classifies the result of one Source.Next call.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoData
	OutcomePollTimeout
	OutcomeRecoverable
	OutcomeFatal
	OutcomeEndOfStream
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoData:
		return "no-data"
	case OutcomePollTimeout:
		return "poll-timeout"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatal:
		return "fatal"
	case OutcomeEndOfStream:
		return "end-of-stream"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Retry reports whether the caller should simply call Next again.
func (o Outcome) Retry() bool {
	return o == OutcomeNoData || o == OutcomePollTimeout || o == OutcomeRecoverable
}

// OutcomeOf maps an error returned by Next onto an Outcome. Errors that do
// not wrap one of the sentinels are treated as fatal.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNoData):
		return OutcomeNoData
	case errors.Is(err, ErrPollTimeout):
		return OutcomePollTimeout
	case errors.Is(err, ErrRecoverable):
		return OutcomeRecoverable
	case errors.Is(err, ErrEndOfStream):
		return OutcomeEndOfStream
	default:
		return OutcomeFatal
	}
}
