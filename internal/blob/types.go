// Package blob is the entry point for object storage. Callers depend on the
// Store interface defined here; only this package imports the concrete
// backends under internal/infra/blob.
package blob

import "flowcore/internal/blob/core"

// Re-exported contract types.
type (
	Store      = core.Store
	Info       = core.Info
	PutOptions = core.PutOptions
	Driver     = core.Driver
)

// Drivers.
const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound is returned by Get and Head for absent keys.
var ErrNotFound = core.ErrNotFound
