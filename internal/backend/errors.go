package backend

import (
	"errors"
	"strings"
)

// ErrUnknownCollection is returned for a collection outside the schema.
var ErrUnknownCollection = errors.New("unknown collection")

// ErrUnknownProcedure is returned for an unregistered procedure name.
var ErrUnknownProcedure = errors.New("unknown procedure")

// ErrNoObjectStore is returned from Upload when the facade has no object
// store behind it.
var ErrNoObjectStore = errors.New("no object store configured")

// IsMissingColumn reports whether err carries the failure signature of a
// write against a column the deployment's schema does not have. Covers the
// sqlite message and the SQLSTATE undefined_column code emitted by
// postgres-backed deployments.
func IsMissingColumn(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "has no column named") ||
		strings.Contains(msg, "42703")
}
