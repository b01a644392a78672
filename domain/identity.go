// Package domain contains core concepts of the chat system.
// This file defines registered identities and the phone key rules.
package domain

import (
	"chat-relay/errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// phoneSeparators are stripped before the digit-count check.
var phoneSeparators = strings.NewReplacer(" ", "", "\t", "", "-", "", "(", "", ")", "", "+", "")

// Identity is a registered phone-keyed user. Immutable once registered.
type Identity struct {
	Key         string `json:"phone"`
	DisplayName string `json:"username"`
}

// NormalizePhone strips separators and checks that 10 to 15 digits remain.
// The returned value is the canonical identity key.
func NormalizePhone(raw string) (string, error) {
	digits := phoneSeparators.Replace(strings.TrimSpace(raw))
	if err := validate.Var(digits, "required,number,min=10,max=15"); err != nil {
		return "", errors.ErrInvalidPhone
	}
	return digits, nil
}
