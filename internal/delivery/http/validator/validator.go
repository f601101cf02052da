// Package validator wires go-playground/validator into echo.
package validator

import (
	playground "github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// EchoValidator adapts a validator.Validate to echo's Validator interface.
type EchoValidator struct {
	validate *playground.Validate
}

// New builds the request validator.
func New() *EchoValidator {
	return &EchoValidator{validate: playground.New()}
}

// Validate implements echo.Validator.
func (v *EchoValidator) Validate(i any) error {
	return errors.WithStack(v.validate.Struct(i))
}
