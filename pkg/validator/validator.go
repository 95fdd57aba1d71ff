package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates structs tagged with `validate` rules.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) Validate(obj interface{}) error {
	if err := v.v.Struct(obj); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("field %s failed validation rule %q", e.Field(), e.Tag())
		}
		return err
	}
	return nil
}
