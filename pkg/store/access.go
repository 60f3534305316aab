package store

import (
	"errors"

	"github.com/codeready-toolchain/agentrt/pkg/reqctx"
)

// ErrNotFound is returned when a resource does not exist or is not
// accessible under the requested owner scope.
var ErrNotFound = errors.New("resource not found")

// ErrConflict is returned on a duplicate create with if_exists="raise".
var ErrConflict = errors.New("resource already exists")

// Readable reports whether a resource stamped with ownedBy is readable by
// requester. A resource is read-accessible when no owner is supplied by the
// caller, no owner is stamped on the resource, the owner matches, or the
// resource's owner is the system owner.
func Readable(ownedBy, requester string) bool {
	if requester == "" || ownedBy == "" {
		return true
	}
	if ownedBy == requester {
		return true
	}
	return ownedBy == reqctx.SystemOwner
}

// Writable reports whether a resource stamped with ownedBy may be mutated
// by requester. System-owned resources are never user-writable.
func Writable(ownedBy, requester string) bool {
	if requester == "" || ownedBy == "" {
		return true
	}
	return ownedBy == requester
}
