package api

import "fmt"

// TransportError is returned when an HTTP round-trip fails or the backend
// answers with a non-2xx status. Detail carries the backend's error text
// when it sent one.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int // 0 when no response was received
	Status     string
	Detail     string
	Cause      error
}

func (e *TransportError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Cause)
	case e.Detail != "":
		return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Status, e.Detail)
	default:
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Cause }

// DataError is returned when the backend answers 2xx but reports a failure
// in the response body.
type DataError struct {
	Path    string
	Message string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
