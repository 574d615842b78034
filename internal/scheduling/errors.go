/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"errors"
	"fmt"

	"github.com/friendsincode/heimdall_signage/internal/catalog"
)

// ErrNotFound indicates the operation referenced an item absent from
// the catalog.
var ErrNotFound = catalog.ErrNotFound

// ValidationError reports a malformed or inconsistent candidate. It is
// always surfaced to the caller and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func validationErr(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
