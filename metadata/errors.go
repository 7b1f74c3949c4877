package metadata

import "fmt"

// indicates that a template file exists but cannot be read or parsed; the
// current upload attempt is aborted, nothing else
type TemplateError struct {
	Path, Message string
}

func (e TemplateError) Error() string {
	return fmt.Sprintf("Couldn't load metadata template '%s': %s", e.Path, e.Message)
}
