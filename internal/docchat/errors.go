package docchat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned by provider mutations when no user is signed in.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrDocumentNotFound is returned when a document ID does not exist for the owner.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidTransition is returned when a status change would move a document backwards.
	ErrInvalidTransition = errors.New("invalid document status transition")

	// ErrDuplicateFile is returned by the staging area for a file already in the batch.
	ErrDuplicateFile = errors.New("file already staged")

	// ErrSessionNotFound is returned when a chat session does not exist or was deleted.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrNothingToSave is returned when a transcript with no messages is saved.
	ErrNothingToSave = errors.New("no messages to save")
)

// ValidationError reports input rejected before any backend call was made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	// ErrEmptyQuery is returned for blank search or chat input.
	ErrEmptyQuery = &ValidationError{Message: "Please enter a question."}

	// ErrNoDocuments is returned when chatting before any document is processed.
	ErrNoDocuments = &ValidationError{Message: "Please upload documents first."}
)

// Authentication error codes, as reported by the identity provider.
const (
	AuthInvalidCredential = "auth/invalid-credential"
	AuthUserNotFound      = "auth/user-not-found"
	AuthWrongPassword     = "auth/wrong-password"
	AuthTooManyRequests   = "auth/too-many-requests"
	AuthEmailInUse        = "auth/email-already-in-use"
	AuthInvalidEmail      = "auth/invalid-email"
	AuthWeakPassword      = "auth/weak-password"
	AuthSessionExpired    = "auth/session-expired"
)

var authMessages = map[string]string{
	AuthInvalidCredential: "Invalid email or password.",
	AuthUserNotFound:      "No account found with this email.",
	AuthWrongPassword:     "Incorrect password.",
	AuthTooManyRequests:   "Too many failed attempts. Please try again later.",
	AuthEmailInUse:        "An account with this email already exists.",
	AuthInvalidEmail:      "Please enter a valid email address.",
	AuthWeakPassword:      "Password should be at least 6 characters.",
	AuthSessionExpired:    "Your session has expired. Please log in again.",
}

const defaultAuthMessage = "Authentication failed. Please try again."

// AuthError is an authentication failure carrying the provider's error code.
type AuthError struct {
	Code  string
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return e.Code
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Message returns the user-readable text for the error code.
func (e *AuthError) Message() string {
	if msg, ok := authMessages[e.Code]; ok {
		return msg
	}
	return defaultAuthMessage
}

// AuthErrorMessage translates any error from an auth operation into text
// suitable for showing to the user.
func AuthErrorMessage(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message()
	}
	return defaultAuthMessage
}
