package users

import (
	"errors"
	"strings"

	"github.com/calm-green-heron/stagewise/internal/models"
)

func ValidateFullName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("fullName is required")
	}
	if len(name) > 100 {
		return errors.New("fullName must be 100 characters or less")
	}
	return nil
}

func ValidateGender(gender string) error {
	switch gender {
	case models.GenderMale, models.GenderFemale, models.GenderOther, "":
		return nil
	}
	return errors.New("gender must be male, female, or other")
}
