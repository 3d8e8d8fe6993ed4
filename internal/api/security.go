package api

import (
	"fmt"

	"github.com/google/uuid"
)

// validateJobID rejects anything but a canonical UUID, so job IDs taken
// from the path never reach logs or lookups unchecked.
func validateJobID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("invalid job ID %q", id)
	}
	return nil
}
