package strategy

import (
	"time"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
)

// StepState is the state of one interval step of a periodic investment.
type StepState int

const (
	Pending StepState = iota
	Succeeded
	Exhausted
)

func (s StepState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Step tracks one interval step: the scheduled date, the date of the latest
// attempt and how many attempts were made.
type Step struct {
	Scheduled time.Time
	Date      time.Time
	Attempts  int
	State     StepState
	Err       error
}

// NewStep is a pending step with no attempts yet.
func NewStep(date time.Time) Step {
	date = dates.Normalize(date)
	return Step{Scheduled: date, Date: date, State: Pending}
}

// Advance records the outcome of an attempt at s.Date. A failure moves the step
// to the next day until MaxAttempts is reached. Retries are not bounded by the
// plan's end date; only the scheduling of new steps is.
func (s Step) Advance(err error) Step {
	if s.State != Pending {
		return s
	}
	s.Attempts++
	if err == nil {
		s.State = Succeeded
		s.Err = nil
		return s
	}
	s.Err = err
	if s.Attempts >= MaxAttempts {
		s.State = Exhausted
		return s
	}
	s.Date = dates.AddDays(s.Date, 1)
	return s
}

// resume is the date the next interval is counted from: the day of the
// successful buy, or the day after the last failed attempt.
func (s Step) resume() time.Time {
	if s.State == Exhausted {
		return dates.AddDays(s.Date, 1)
	}
	return s.Date
}
