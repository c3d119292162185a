package tasks

import (
	"fmt"
	"strings"

	"github.com/JaimeStill/vigil/internal/faults"
)

// Status is the persisted lifecycle state of a task.
type Status string

const (
	StatusCreated             Status = "CREATED"
	StatusModerating          Status = "MODERATING"
	StatusModerationCompleted Status = "MODERATION_COMPLETED"
	StatusHumanReviewing      Status = "HUMAN_REVIEWING"
	StatusCompleted           Status = "COMPLETED"
	StatusFailed              Status = "FAILED"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusCreated,
	StatusModerating,
	StatusModerationCompleted,
	StatusHumanReviewing,
	StatusCompleted,
	StatusFailed,
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether s is a started, non-terminal status that the
// reconciler is responsible for advancing.
func (s Status) Active() bool {
	return s == StatusModerating || s == StatusModerationCompleted || s == StatusHumanReviewing
}

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", faults.ErrValidation, s)
}

// Event is a pipeline signal that may advance a task.
type Event string

const (
	EventStart              Event = "start"
	EventModerationFinished Event = "moderation_finished"
	EventReviewRouted       Event = "review_routed"
	EventNoReviewNeeded     Event = "no_review_needed"
	EventReviewsResolved    Event = "reviews_resolved"
	EventFail               Event = "fail"

	// EventRelease returns a claimed task to CREATED when its batch
	// execution could not be dispatched.
	EventRelease Event = "release"
)

var transitions = map[Status]map[Event]Status{
	StatusCreated: {
		EventStart: StatusModerating,
	},
	StatusModerating: {
		EventModerationFinished: StatusModerationCompleted,
		EventRelease:            StatusCreated,
	},
	StatusModerationCompleted: {
		EventReviewRouted:   StatusHumanReviewing,
		EventNoReviewNeeded: StatusCompleted,
	},
	StatusHumanReviewing: {
		EventReviewsResolved: StatusCompleted,
	},
}

// Next returns the status reached by applying e to s. It is pure; persisting
// the result is the registry's job.
func Next(s Status, e Event) (Status, error) {
	if s.Terminal() {
		return "", fmt.Errorf("%w: task is %s", faults.ErrInvalidState, s)
	}
	if e == EventFail {
		return StatusFailed, nil
	}
	if to, ok := transitions[s][e]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: event %s not allowed from %s", faults.ErrInvalidState, e, s)
}

// EventFor finds the externally signalable event that moves from to to.
// Start and Release are owned by the orchestrator and never returned.
func EventFor(from, to Status) (Event, error) {
	if from.Terminal() {
		return "", fmt.Errorf("%w: task is %s", faults.ErrInvalidState, from)
	}
	if to == StatusFailed {
		return EventFail, nil
	}
	for e, target := range transitions[from] {
		if target == to && e != EventStart && e != EventRelease {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: cannot move from %s to %s", faults.ErrInvalidState, from, to)
}
