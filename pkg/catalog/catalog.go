// Package catalog is the client side of the replica/catalog lookup service:
// it resolves file identifiers to the storage locations holding a physical
// copy of each file.
package catalog

import (
	"context"
	"strings"
)

// ReplicaSet maps a storage-location identifier to the physical name of the
// replica at that location.
type ReplicaSet map[string]string

// Result is the outcome of one batch lookup. Each requested file identifier
// appears either in Successful with its locations or in Failed with a
// reason string.
type Result struct {
	Successful map[string]ReplicaSet `json:"successful"`
	Failed     map[string]string     `json:"failed"`
}

// ReasonNotFound is the failure reason the catalog reports for files it has
// no record of, as opposed to transient lookup failures.
const ReasonNotFound = "no such file or directory"

// NotFound reports whether a per-file failure reason means the file is
// absent from the catalog.
func NotFound(reason string) bool {
	return strings.Contains(strings.ToLower(reason), ReasonNotFound)
}

// IsFailover reports whether a storage location is a failover/backup
// location. Failover replicas are transient copies parked next to the
// failed transfer; they are never valid task targets.
func IsFailover(location string) bool {
	return strings.Contains(strings.ToLower(location), "failover")
}

// Client is the set of operations the agent consumes from the catalog
// service.
type Client interface {
	// ActiveReplicas resolves the locations of the given files, considering
	// only locations currently marked usable.
	ActiveReplicas(ctx context.Context, fileIDs []string) (Result, error)

	// AllReplicas resolves every known location of the given files, active
	// or not.
	AllReplicas(ctx context.Context, fileIDs []string) (Result, error)
}
