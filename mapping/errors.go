package mapping

import "fmt"

// indicates that a mapping file is malformed or contains an invalid entry
type ConfigError struct {
	Path, Message string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("Invalid mapping file '%s': %s", e.Path, e.Message)
}
