package config

import "fmt"

// ConfigurationError reports configuration that prevents the process from
// starting. Variable names the setting to fix.
type ConfigurationError struct {
	Variable string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("config: %s %s", e.Variable, e.Reason)
	}
	return fmt.Sprintf("config: %s %s: %v", e.Variable, e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
