package rbac

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is matched by every *PermissionDeniedError
var ErrPermissionDenied = errors.New("permission denied")

// PermissionDeniedError is returned by AssertPermission. It is recoverable and
// meant to be surfaced to the user at a request or form boundary.
type PermissionDeniedError struct {
	Role       Role
	Permission Permission
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: role %q lacks %s", e.Role, e.Permission)
}

// Is lets errors.Is(err, ErrPermissionDenied) match
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// IsPermissionDenied extracts a *PermissionDeniedError from err
func IsPermissionDenied(err error) (*PermissionDeniedError, bool) {
	var denied *PermissionDeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
