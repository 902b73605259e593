package util

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRubricNotFound     = errors.New("rubric not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrCriterionNotFound  = errors.New("criterion not found")
	ErrNoRubricAttached   = errors.New("assignment has no rubric attached")
	ErrCriterionInUse     = errors.New("cannot delete criterion that has been used in assessments")
	ErrOffline            = errors.New("canvas unreachable, operation deferred")
	ErrSyncInProgress     = errors.New("sync already in progress")
)

// ValidationError rejects a grading or rubric payload before any persistence.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Issues, "; "))
}

func NewValidationError(issues ...string) *ValidationError {
	return &ValidationError{Issues: issues}
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRubricNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrSubmissionNotFound) ||
		errors.Is(err, ErrAssessmentNotFound) ||
		errors.Is(err, ErrCriterionNotFound)
}
