package accessguard

import "fmt"

// ValidationError rejects a configuration write the administrator can
// correct: bad filter syntax, mismatched field/model, duplicate rules,
// protected identities.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validationErrorf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// AccessDeniedError is the runtime security boundary: a resolved
// restriction blocked the operation.
type AccessDeniedError struct {
	Model     string
	Operation string
	Reason    string
}

func (e *AccessDeniedError) Error() string {
	if e.Model != "" && e.Operation != "" {
		return fmt.Sprintf("you do not have permission to %s records of model %s", e.Operation, e.Model)
	}
	return e.Reason
}

func accessDenied(model, op string) error {
	return &AccessDeniedError{Model: model, Operation: op}
}
