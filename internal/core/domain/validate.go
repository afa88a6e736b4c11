package domain

import "livestream/pkg/validation"

// Validate checks the stored attributes of s and returns an
// *InvalidFieldError for the first offending one.
func (s *Stream) Validate() error {
	return toFieldError(validation.Struct(s))
}

func (a UserAttributes) Validate() error {
	return toFieldError(validation.Struct(a))
}

func toFieldError(fe *validation.FieldError) error {
	if fe == nil {
		return nil
	}
	return &InvalidFieldError{Field: fe.Field, Message: fe.Message}
}
