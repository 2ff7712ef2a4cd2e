package drone

import (
	"errors"
	"fmt"
)

// NotFoundError - upstream replied 404. Recoverable by callers.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.URL)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// UpstreamError - upstream replied non-200, non-404. Propagates to the
// processor, which logs and drops the job.
type UpstreamError struct {
	URL    string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d from %s: %s", e.Status, e.URL, e.Body)
}

// UnexpectedShapeError - the payload was neither a JSON object nor a list.
type UnexpectedShapeError struct {
	URL     string
	Snippet string
}

func (e *UnexpectedShapeError) Error() string {
	return fmt.Sprintf("unexpected payload shape from %s: %s", e.URL, e.Snippet)
}
