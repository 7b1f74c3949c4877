package config

import "fmt"

// indicates that no usable API token is stored for a deposition target
type NoTokenError struct {
	Target string
}

func (e NoTokenError) Error() string {
	return fmt.Sprintf("No API token is stored for %s. Provide one with --token.", e.Target)
}
