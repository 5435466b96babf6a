package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for platform API failures. Callers match with errors.Is;
// anything not wrapping one of these sentinels is a transient failure.
var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
)

// statusError maps an HTTP response status to the error taxonomy.
func statusError(p Platform, status int, path string) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s API %d %s: %w", p, status, path, ErrNotFound)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s API %d %s: %w", p, status, path, ErrUnauthorized)
	case http.StatusForbidden, http.StatusTooManyRequests:
		return fmt.Errorf("%s API %d %s: %w", p, status, path, ErrRateLimited)
	}
	return &httpStatusError{platform: p, status: status, path: path}
}

// IsMissingBranch reports whether err is the 404/422 a platform returns for
// an empty or nonexistent branch on a commit endpoint.
func IsMissingBranch(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *httpStatusError
	return errors.As(err, &se) && se.status == http.StatusUnprocessableEntity
}

// httpStatusError carries the raw status for conditions that are not part
// of the sentinel taxonomy (e.g. 422 on commit lookups).
type httpStatusError struct {
	platform Platform
	status   int
	path     string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s API %d %s", e.platform, e.status, e.path)
}
