package sigv4

import "fmt"

// SigningError reports why a request could not be signed: a missing field
// of the descriptor or a credentials provider failure
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sigv4: %s: %v", e.Reason, e.Err)
	}
	return "sigv4: " + e.Reason
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return &SigningError{Reason: "missing " + field}
}
