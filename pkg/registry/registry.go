package registry

import (
	"context"
)

// Status is the lifecycle status of a transformation. The vocabulary is
// owned by the remote registry and open-ended; the agent only ever reasons
// about the three statuses below.
type Status string

const (
	StatusActive     Status = "Active"
	StatusCompleting Status = "Completing"
	StatusFlush      Status = "Flush"
)

// FileStatus is the per-transformation processing status of a file.
type FileStatus string

const (
	FileStatusUnused           FileStatus = "Unused"
	FileStatusAssigned         FileStatus = "Assigned"
	FileStatusProcessed        FileStatus = "Processed"
	FileStatusMissingInCatalog FileStatus = "MissingInCatalog"
)

// Transformation is a transient, per-cycle copy of a standing rule owned by
// the remote registry. Params carries the extended parameters verbatim; the
// plugin reads its knobs from there.
type Transformation struct {
	ID     int64             `json:"id"`
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Status Status            `json:"status"`
	Plugin string            `json:"plugin,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// File is a work item: a catalog-tracked file identifier plus its status
// within one transformation.
type File struct {
	ID     string     `json:"id"`
	Status FileStatus `json:"status"`
}

// TransformationFilter selects transformations by status and, optionally,
// by type.
type TransformationFilter struct {
	Statuses []Status `json:"statuses,omitempty"`
	Types    []string `json:"types,omitempty"`
}

// Client is the set of operations the agent consumes from the remote
// transformation registry.
type Client interface {
	// Transformations lists transformations matching the filter, with
	// extended parameters.
	Transformations(ctx context.Context, filter TransformationFilter) ([]Transformation, error)

	// Transformation fetches one named transformation, with extended
	// parameters.
	Transformation(ctx context.Context, name string) (Transformation, error)

	// TransformationFiles lists the files of a transformation that carry the
	// given status.
	TransformationFiles(ctx context.Context, id int64, status FileStatus) ([]File, error)

	// AddTask submits a task binding the given files to one storage
	// location.
	AddTask(ctx context.Context, id int64, fileIDs []string, location string) error

	// SetParameter sets a transformation parameter (used for status
	// transitions).
	SetParameter(ctx context.Context, id int64, name, value string) error

	// SetFileStatus sets the status of the given files within a
	// transformation.
	SetFileStatus(ctx context.Context, id int64, status FileStatus, fileIDs []string) error
}
