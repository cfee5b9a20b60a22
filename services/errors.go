package services

import (
	"errors"
	"fmt"

	"github.com/camden-git/faceattendance/media"
	"github.com/camden-git/faceattendance/models"
)

var (
	ErrMatcherNotIdle  = errors.New("matcher is not idle")
	ErrSessionNotFound = errors.New("matching session not found")
)

// EnrollmentError reports an enrollment that stored nothing.
type EnrollmentError struct {
	Owner    models.StudentIdentity
	Reason   string
	Valid    int
	Required int
	// FirstRejection is the earliest rejected photo, when there is one.
	FirstRejection *media.PhotoRejection
	Err            error
}

func (e *EnrollmentError) Error() string {
	msg := fmt.Sprintf("enrollment of %s failed: %s", e.Owner, e.Reason)
	if e.FirstRejection != nil {
		msg += fmt.Sprintf(" (first rejection: %s)", e.FirstRejection)
	}
	return msg
}

func (e *EnrollmentError) Unwrap() error {
	return e.Err
}

// RosterEmptyError is returned when none of the roster's students has a
// stored embedding, so nobody could ever be matched.
type RosterEmptyError struct {
	RosterSize int
}

func (e *RosterEmptyError) Error() string {
	if e.RosterSize == 0 {
		return "roster is empty"
	}
	return fmt.Sprintf("none of the %d students on the roster has enrolled embeddings", e.RosterSize)
}

// CameraError reports that the frame source could not be opened or kept failing.
type CameraError struct {
	Source string
	Err    error
}

func (e *CameraError) Error() string {
	return fmt.Sprintf("camera %q: %v", e.Source, e.Err)
}

func (e *CameraError) Unwrap() error {
	return e.Err
}
