package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStreamNotFound      = errors.New("stream not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrRoomNotFound        = errors.New("chat room not found")
	ErrRoomNotOwned        = errors.New("chat room is bound to another stream")
	ErrStreamExists        = errors.New("stream already exists")
	ErrUserExists          = errors.New("user already exists")
	ErrNotStreamOwner      = errors.New("not authorised to end stream")
	ErrAppInstanceMismatch = errors.New("appInstance parameter does not match streamId")
)

// InvalidFieldError is returned by storage when an attribute fails
// validation. Field is the offending attribute name.
type InvalidFieldError struct {
	Field   string
	Message string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Message)
}

// InvalidColumnError is returned by storage when an update names a column
// that does not exist or cannot be changed.
type InvalidColumnError struct {
	Column string
}

func (e *InvalidColumnError) Error() string {
	return fmt.Sprintf("invalid column: %s", e.Column)
}

// NewAppInstanceInUseError reports that another live stream already holds
// the appInstance, and with it the chat room.
func NewAppInstanceInUseError(appInstance string) *InvalidFieldError {
	return &InvalidFieldError{
		Field:   "appInstance",
		Message: fmt.Sprintf("appInstance %q is already used by a live stream", appInstance),
	}
}
