package projects

import (
	"errors"
	"strings"
	"time"
)

func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > 100 {
		return errors.New("name must be 100 characters or less")
	}
	return nil
}

func ValidateDates(start, estimatedEnd time.Time) error {
	if start.IsZero() || estimatedEnd.IsZero() {
		return errors.New("startDate and estimatedEndDate are required")
	}
	if !estimatedEnd.After(start) {
		return errors.New("estimatedEndDate must be after startDate")
	}
	return nil
}
