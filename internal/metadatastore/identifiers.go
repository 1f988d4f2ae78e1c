package metadatastore

import (
	"fmt"
)

// ConstraintError reports a uniqueness or foreign-key violation.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("metadatastore: constraint %q violated: %v", e.Constraint, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// NotFoundError reports a missing row.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("metadatastore: %s %q not found", e.Resource, e.ID)
}
