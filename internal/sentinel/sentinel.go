// Package sentinel provides standardized error definitions for the tiercache system.
// This package centralizes all error types used across the tiercache components,
// ensuring consistent error handling and messaging throughout the application.
//
// The errors defined here cover various scenarios including:
// - Invalid cache entries (keys, values, expiration, capacity)
// - Backend operation failures (quota, corruption, disabled storage)
// - Migration lifecycle errors (conflicts, step failures, validation, rollback)
// - Runtime operation errors (timeouts, cancellations)
//
// All errors are created using the ewrap package to provide enhanced error
// wrapping and context capabilities.
package sentinel

import (
	"github.com/hyp3rd/ewrap"
)

var (
	// ErrInvalidKey is returned when an invalid key is used to access an entry in the cache.
	// An invalid key is a key that is either empty or consists only of whitespace characters.
	ErrInvalidKey = ewrap.New("invalid key")

	// ErrKeyNotFound is returned when a key is not found in the cache.
	ErrKeyNotFound = ewrap.New("key not found")

	// ErrNilValue is returned when a nil value is attempted to be set in the cache.
	ErrNilValue = ewrap.New("nil value")

	// ErrNilClient is returned when a nil client is passed to a backend.
	ErrNilClient = ewrap.New("nil client")

	// ErrNilDB is returned when a nil database handle is passed to a backend.
	ErrNilDB = ewrap.New("nil database handle")

	// ErrKeyExpired is returned when a key is found in the cache but has expired.
	ErrKeyExpired = ewrap.New("key expired")

	// ErrInvalidExpiration is returned when an invalid expiration is passed to a cache entry.
	ErrInvalidExpiration = ewrap.New("expiration cannot be negative")

	// ErrInvalidCapacity is returned when an invalid capacity is passed to a backend.
	ErrInvalidCapacity = ewrap.New("capacity cannot be negative")

	// ErrParamCannotBeEmpty is returned when a parameter cannot be empty.
	ErrParamCannotBeEmpty = ewrap.New("param cannot be empty")

	// ErrSerializerNotFound is returned when a serializer is not found.
	ErrSerializerNotFound = ewrap.New("serializer not found")

	// ErrStatsCollectorNotFound is returned when a stats collector is not found.
	ErrStatsCollectorNotFound = ewrap.New("stats collector not found")

	// ErrInvalidSize is returned when the size of an entry cannot be computed.
	ErrInvalidSize = ewrap.New("invalid size")

	// ErrTimeoutOrCanceled is returned when an operation is canceled or times out.
	ErrTimeoutOrCanceled = ewrap.New("operation timed out or canceled")

	// ErrBackendOperationFailed is returned when a storage backend fails to complete
	// an operation. Driver-specific failures are wrapped into this error at the
	// adapter boundary so that nothing backend-specific propagates upward.
	ErrBackendOperationFailed = ewrap.New("backend operation failed")

	// ErrQuotaExceeded is returned when a write would exceed a backend's byte quota.
	ErrQuotaExceeded = ewrap.New("storage quota exceeded")

	// ErrAllBackendsFailed is returned when every adapter in the fallback chain
	// rejected an operation. This is the single fatal condition of the router.
	ErrAllBackendsFailed = ewrap.New("all storage backends failed")

	// ErrMigrationInProgress is returned when a migration is requested while another
	// one is still running. Concurrent migrations are rejected, never queued.
	ErrMigrationInProgress = ewrap.New("migration already in progress")

	// ErrMigrationStepFailed is returned when a required migration step fails to
	// execute or validate.
	ErrMigrationStepFailed = ewrap.New("migration step failed")

	// ErrMigrationValidationFailed is returned when the post-migration structural
	// validation finds the enhanced schema in an inconsistent state.
	ErrMigrationValidationFailed = ewrap.New("migration validation failed")

	// ErrRollbackFailed is returned when a rollback cannot fully restore the
	// pre-migration state. The caller proceeds in degraded mode.
	ErrRollbackFailed = ewrap.New("rollback failed")

	// ErrNoBackupAvailable is returned when a rollback is requested but no backup
	// snapshot has been written.
	ErrNoBackupAvailable = ewrap.New("no backup snapshot available")

	// ErrNotInitialized is returned when the facade is used before Initialize completed.
	ErrNotInitialized = ewrap.New("cache service not initialized")

	// ErrMgmtHTTPShutdownTimeout is returned when the management HTTP server fails
	// to shut down within the caller's deadline.
	ErrMgmtHTTPShutdownTimeout = ewrap.New("management http shutdown timed out")
)
