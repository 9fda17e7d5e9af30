package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a provider failure.
type Kind string

// Provider failure kinds.
const (
	KindQuota          Kind = "quota"
	KindAuthentication Kind = "authentication"
	KindBilling        Kind = "billing"
	KindUnavailable    Kind = "unavailable"
	KindOther          Kind = "other"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrQuota          = errors.New("provider quota exhausted")
	ErrAuthentication = errors.New("provider authentication failed")
	ErrBilling        = errors.New("provider billing disabled")
	ErrUnavailable    = errors.New("provider unavailable")
	ErrOther          = errors.New("provider request failed")
)

// Account reports whether the kind describes the configured account rather
// than a transient condition.
func (k Kind) Account() bool {
	return k == KindQuota || k == KindAuthentication || k == KindBilling
}

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Status     string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "provider %s error", e.Kind)

	if e.StatusCode != 0 {
		fmt.Fprintf(&builder, " (HTTP %d", e.StatusCode)

		if e.Status != "" {
			fmt.Fprintf(&builder, " %s", e.Status)
		}

		builder.WriteString(")")
	}

	if e.Message != "" {
		fmt.Fprintf(&builder, ": %s", e.Message)
	}

	if e.Err != nil {
		fmt.Fprintf(&builder, ": %v", e.Err)
	}

	return builder.String()
}

// Unwrap exposes the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	unwrapped := []error{sentinelFor(e.Kind)}
	if e.Err != nil {
		unwrapped = append(unwrapped, e.Err)
	}

	return unwrapped
}

// KindOf returns the kind of a provider error, or KindOther when err is not
// one.
func KindOf(err error) Kind {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}

	return KindOther
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindQuota:
		return ErrQuota
	case KindAuthentication:
		return ErrAuthentication
	case KindBilling:
		return ErrBilling
	case KindUnavailable:
		return ErrUnavailable
	default:
		return ErrOther
	}
}

// classify maps an HTTP status and the error body status field to a kind.
func classify(statusCode int, status, message string) Kind {
	lowerMessage := strings.ToLower(message)

	switch {
	case statusCode == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return KindQuota
	case statusCode == http.StatusUnauthorized || status == "UNAUTHENTICATED":
		return KindAuthentication
	case statusCode == http.StatusForbidden && strings.Contains(lowerMessage, "billing"):
		return KindBilling
	case statusCode == http.StatusForbidden || status == "PERMISSION_DENIED":
		return KindAuthentication
	case statusCode >= http.StatusInternalServerError || status == "UNAVAILABLE":
		return KindUnavailable
	default:
		return KindOther
	}
}
