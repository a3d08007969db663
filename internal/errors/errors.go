// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidSymbol       = errors.New("invalid symbol format")
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrDataNotFound        = errors.New("data not found")
	ErrBulkListUnavailable = errors.New("instrument list unavailable")
	ErrEmptyResponse       = errors.New("provider returned empty response")
	ErrRateLimited         = errors.New("rate limited")
	ErrTimeout             = errors.New("operation timed out")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrCacheUnavailable    = errors.New("cache directory unavailable")
	ErrSchedulerStopped    = errors.New("scheduler is not running")
	ErrTaskNotFound        = errors.New("task not found")
	ErrDatabaseError       = errors.New("database error")
)

// ProviderError represents an error from the market-data provider.
type ProviderError struct {
	Endpoint string
	Symbol   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("provider error [%s] %s: %v", e.Endpoint, e.Symbol, e.Err)
	}
	return fmt.Sprintf("provider error [%s]: %v", e.Endpoint, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(endpoint, symbol string, err error) *ProviderError {
	return &ProviderError{
		Endpoint: endpoint,
		Symbol:   symbol,
		Err:      err,
	}
}

// CacheError represents a cache read/write failure. Reads that fail with a
// CacheError are treated as misses by callers, never propagated.
type CacheError struct {
	Namespace string
	Key       string
	Op        string
	Err       error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s [%s/%s]: %v", e.Op, e.Namespace, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// NewCacheError creates a new CacheError.
func NewCacheError(op, namespace, key string, err error) *CacheError {
	return &CacheError{
		Namespace: namespace,
		Key:       key,
		Op:        op,
		Err:       err,
	}
}

// TaskError represents a failure inside a scheduled task handler.
type TaskError struct {
	TaskID string
	Kind   string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task error [%s] %s: %v", e.TaskID, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a new TaskError.
func NewTaskError(taskID, kind string, err error) *TaskError {
	return &TaskError{
		TaskID: taskID,
		Kind:   kind,
		Err:    err,
	}
}
