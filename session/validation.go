package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/aranyahq/aranya-go/api"
)

// RegisterParams is the registration payload. The field set mirrors the
// backend's registration endpoint.
type RegisterParams struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Gender          string `json:"gender"`
	YearOfBirth     int    `json:"year_of_birth"`
}

// Validate checks the payload before any network call is made. A failure here
// must leave the credential store untouched, which holds trivially because
// validation runs first.
func (p RegisterParams) Validate() error {
	if strings.TrimSpace(p.Username) == "" {
		return validationError("username is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return validationError("email is required")
	}
	if !strings.Contains(p.Email, "@") {
		return validationError("email address is not valid")
	}
	if p.Password == "" {
		return validationError("password is required")
	}
	if p.Password != p.ConfirmPassword {
		return validationError("passwords do not match")
	}
	if p.YearOfBirth != 0 {
		if current := time.Now().Year(); p.YearOfBirth < 1900 || p.YearOfBirth > current {
			return validationError(fmt.Sprintf("year of birth must be between 1900 and %d", current))
		}
	}
	return nil
}

func validationError(message string) error {
	return &api.Error{Kind: api.ErrValidation, Message: message}
}
