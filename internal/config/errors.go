package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration matches every InvalidConfigurationError.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// InvalidConfigurationError reports a symbolic configuration value that is
// not one of the recognized values of its field.
type InvalidConfigurationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("%s invalid: %q (values: %v)", e.Field, e.Value, e.Allowed)
}

func (*InvalidConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
