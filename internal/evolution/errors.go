package evolution

import "fmt"

// APIError is a non-2xx response from the provider. Body carries the
// provider's error payload verbatim so operators see the real reason.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("evolution api: %s returned %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("evolution api: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsNotFound reports whether the error is a provider 404. Used by
// deprovisioning to treat already-removed instances as success.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == 404
}
