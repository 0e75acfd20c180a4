package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing record where one was required.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrAssetUnavailable marks a referenced blob that is absent on this device.
// The owning entry stays usable; callers surface the condition instead of
// failing the operation.
var ErrAssetUnavailable = errors.New("asset payload not available on this device")
