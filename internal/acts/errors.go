package acts

import (
	"errors"
	"fmt"
)

var (
	// ErrActNotFound indicates the act does not exist.
	ErrActNotFound = errors.New("acts: act not found")
	// ErrCaseNotFound indicates the case does not exist.
	ErrCaseNotFound = errors.New("acts: case not found")
	// ErrInvalidTransition indicates a lifecycle move from the wrong state.
	ErrInvalidTransition = errors.New("acts: invalid status transition")
	// ErrNothingToArchive indicates a case holds no signed act.
	ErrNothingToArchive = errors.New("acts: nothing to archive")
	// ErrInvalidInput indicates malformed draft data.
	ErrInvalidInput = errors.New("acts: invalid input")
)

// InvalidTransitionError carries the rejected move.
type InvalidTransitionError struct {
	Entity string
	ID     int64
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("acts: %s %d cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NothingToArchiveError names the case without signed acts.
type NothingToArchiveError struct {
	CaseID int64
}

func (e *NothingToArchiveError) Error() string {
	return fmt.Sprintf("acts: case %d has no signed act to archive", e.CaseID)
}

// Is matches ErrNothingToArchive.
func (e *NothingToArchiveError) Is(target error) bool { return target == ErrNothingToArchive }
