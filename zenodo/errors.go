package zenodo

import "fmt"

// indicates that the API token is missing, malformed, or expired
type UnauthorizedError struct {
}

func (e UnauthorizedError) Error() string {
	return "The Zenodo API token is missing, invalid, or expired."
}

// indicates that the token is valid but lacks the scope for the operation
type ForbiddenError struct {
	Operation string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("The Zenodo API token isn't permitted to %s.", e.Operation)
}

// a single field-level complaint in a rejected deposition request
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// indicates that the API rejected the request payload, with the field-level
// reasons it reported
type InvalidRequestError struct {
	Errors []FieldError
}

func (e InvalidRequestError) Error() string {
	message := "Zenodo rejected the request"
	for _, fieldError := range e.Errors {
		message += fmt.Sprintf("\n  %s: %s", fieldError.Field, fieldError.Message)
	}
	return message
}

// indicates that the requested deposition or file doesn't exist
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("Zenodo has no such resource: %s", e.Resource)
}

// indicates that the operation conflicts with the deposition's state, e.g.
// publishing an already-published deposition
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("The operation conflicts with the deposition's state: %s", e.Message)
}

// indicates that an uploaded file exceeds the repository's size limit
type FileTooLargeError struct {
	File string
}

func (e FileTooLargeError) Error() string {
	return fmt.Sprintf("Zenodo rejected '%s' as too large.", e.File)
}

// indicates that the client has hit the API's rate limit
type RateLimitError struct {
}

func (e RateLimitError) Error() string {
	return "The Zenodo API rate limit has been reached. Try again in a minute."
}

// indicates a server-side failure (5xx)
type ServerError struct {
	StatusCode int
}

func (e ServerError) Error() string {
	return fmt.Sprintf("Zenodo reported a server error (%d). Try again later.", e.StatusCode)
}

// indicates that a redirect attempted to downgrade the connection to
// plain HTTP
type DowngradedRedirectError struct {
	Endpoint string
}

func (e DowngradedRedirectError) Error() string {
	return fmt.Sprintf("A redirect to %s attempted to downgrade the connection to HTTP.", e.Endpoint)
}
