package domain

import "fmt"

// ConfigError reports an invalid entity configuration. It is returned at
// create/update time, never during a sync run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
