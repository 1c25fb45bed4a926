// Package types defines the backend-agnostic contract of the fusion data
// layer: backend kinds and connection parameters, the User record, the
// UnitOfWork interface handed to request handlers, and the sentinel errors
// shared by every storage backend.
package types
