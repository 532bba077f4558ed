package purge

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrUnauthenticated means no bearer token was supplied.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidPatientID means the patient id is missing or not a canonical GUID.
	ErrInvalidPatientID = errors.New("invalid patient id")
)

var patientIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidatePatientID accepts only the canonical 8-4-4-4-12 hex form.
func ValidatePatientID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: patientId is required", ErrInvalidPatientID)
	}
	if !patientIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q is not a GUID", ErrInvalidPatientID, id)
	}
	return nil
}

// IsUnauthenticated reports whether err is a missing-token error.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsInvalidInput reports whether err is a patient id validation error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidPatientID)
}
