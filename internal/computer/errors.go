package computer

import "fmt"

// NotBootedError is returned by any operation that requires BootUp to
// have completed.
type NotBootedError struct{ Name string }

func (e *NotBootedError) Error() string {
	return fmt.Sprintf("computer %q is not booted", e.Name)
}

// ConfirmationRequiredError is returned when a tool requires
// confirmation but no confirm callback was ever registered.
type ConfirmationRequiredError struct{ Tool string }

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("tool %q requires confirmation but no confirm callback is registered", e.Tool)
}

// InputUnresolvedError is returned when rendering a config needs an
// input id that has neither a cached value nor a default.
type InputUnresolvedError struct{ ID string }

func (e *InputUnresolvedError) Error() string {
	return fmt.Sprintf("input %q has no cached value or default", e.ID)
}

// InputNotFoundError is returned when resolving an input id absent
// from the Computer's known input definitions.
type InputNotFoundError struct{ ID string }

func (e *InputNotFoundError) Error() string {
	return fmt.Sprintf("input %q is not defined", e.ID)
}
