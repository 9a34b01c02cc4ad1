package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error categories. Every error returned by the core matches one of them with
// errors.Is. A RestoreError additionally matches the category of its cause.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrBackupValidation   = errors.New("backup validation error")
	ErrRuntimeOperation   = errors.New("container runtime error")
	ErrRestoreTimeout     = errors.New("restore timeout")
	ErrRestoreFailed      = errors.New("restore failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrQueryExecution     = errors.New("query execution error")
)

var (
	ErrUnsupportedBackupType = fmt.Errorf("%w: unsupported backup type", ErrConfiguration)
	ErrInvalidPath           = fmt.Errorf("%w: backup path is not a readable directory", ErrConfiguration)
	ErrUnsupportedBackend    = fmt.Errorf("%w: unsupported container engine", ErrConfiguration)

	ErrMetadataNotFound  = fmt.Errorf("%w: backup metadata not found", ErrBackupValidation)
	ErrAmbiguousMetadata = fmt.Errorf("%w: more than one metadata file in directory", ErrBackupValidation)
	ErrMalformedMetadata = fmt.Errorf("%w: malformed backup metadata", ErrBackupValidation)
	ErrBackupEncrypted   = fmt.Errorf("%w: encrypted backups are not supported", ErrBackupValidation)
	ErrIncrementalBackup = fmt.Errorf("%w: incremental backups are not supported", ErrBackupValidation)
	ErrPartialBackup     = fmt.Errorf("%w: partial backups are not supported", ErrBackupValidation)
	ErrBackupNotFound    = fmt.Errorf("%w: backup artifact not found", ErrBackupValidation)
	ErrAmbiguousArtifact = fmt.Errorf("%w: more than one backup artifact matches", ErrBackupValidation)

	ErrVolumeExists = fmt.Errorf("%w: volume already exists", ErrRuntimeOperation)
)

// RuntimeError is a failed call to the container runtime.
type RuntimeError struct {
	Op     string
	Target string
	Err    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *RuntimeError) Unwrap() []error {
	return []error{ErrRuntimeOperation, e.Err}
}

// TimeoutError is returned when a container did not reach its target state in
// time. The container has been killed by the time it is returned.
type TimeoutError struct {
	Container string
	State     ContainerStatus
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("container %s did not reach state %q within %s", e.Container, e.State, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrRestoreTimeout
}

// RestoreError carries the restore step that failed.
type RestoreError struct {
	Job  string
	Step string
	Err  error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore %s: %s: %v", e.Job, e.Step, e.Err)
}

func (e *RestoreError) Unwrap() []error {
	return []error{ErrRestoreFailed, e.Err}
}

// QueryError is a single failed obfuscation statement.
type QueryError struct {
	Statement string
	Code      uint16
	Err       error
}

func (e *QueryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("statement %q failed (mysql %d): %v", e.Statement, e.Code, e.Err)
	}
	return fmt.Sprintf("statement %q failed: %v", e.Statement, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQueryExecution, e.Err}
}

// PipelineError is what the CLI sees: which job, which step, which cause.
type PipelineError struct {
	Job   string
	RunID string
	Step  string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("job %s (run %s) failed at %s: %v", e.Job, e.RunID, e.Step, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
