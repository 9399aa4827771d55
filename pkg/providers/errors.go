package providers

import "fmt"

type ErrorKind string

const (
	ErrKindAuth        ErrorKind = "auth"
	ErrKindRateLimit   ErrorKind = "rate-limit"
	ErrKindBadRequest  ErrorKind = "bad-request"
	ErrKindUnavailable ErrorKind = "unavailable"
	ErrKindUnknown     ErrorKind = "unknown"
)

// ProviderError normalizes backend failures so callers can present them
// uniformly regardless of which adapter produced them.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status code onto an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrKindAuth
	case status == 429:
		return ErrKindRateLimit
	case status >= 400 && status < 500:
		return ErrKindBadRequest
	case status >= 500:
		return ErrKindUnavailable
	default:
		return ErrKindUnknown
	}
}
