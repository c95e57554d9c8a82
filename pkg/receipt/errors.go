package receipt

import "fmt"

// InvalidFieldError reports a bad or missing receipt field at
// construction time.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid receipt field %q: %s", e.Field, e.Reason)
}
