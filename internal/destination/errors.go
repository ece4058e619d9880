package destination

import (
	"fmt"

	"github.com/o2cms/cfmigrate/internal/errors"
)

// StatusError is returned when the destination answers with a status the
// operation does not accept.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ErrorCategory classifies status errors as HTTP failures.
func (e *StatusError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryHTTP
}
