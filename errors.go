package vkdecode

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Decoder or by Negotiate matches
// exactly one of these with errors.Is.
var (
	// ErrInvalidConfiguration means the requested profile, level, extent or
	// format is incompatible with the device. Terminal for that configuration.
	ErrInvalidConfiguration = errors.New("vkdecode: invalid configuration")

	// ErrUnsupported means the device lacks a required capability.
	ErrUnsupported = errors.New("vkdecode: unsupported")

	// ErrOutOfMemory means a host or device allocation failed. The caller
	// may retry after freeing resources elsewhere.
	ErrOutOfMemory = errors.New("vkdecode: out of memory")

	// ErrExternalDevice is an opaque driver-level failure. The session
	// should be closed and optionally recreated.
	ErrExternalDevice = errors.New("vkdecode: external device error")

	// ErrDriverContractViolation means the device reported an internally
	// inconsistent capability set.
	ErrDriverContractViolation = errors.New("vkdecode: driver contract violation")
)

// Backend results. Drivers return these (possibly wrapped) so the negotiator
// and pools can classify failures.
var (
	ErrProfileOperationNotSupported = errors.New("vkdecode: video profile operation not supported")
	ErrProfileFormatNotSupported    = errors.New("vkdecode: video profile format not supported")
	ErrFormatNotSupported           = errors.New("vkdecode: format not supported")
	ErrFeatureNotPresent            = errors.New("vkdecode: feature not present")
	ErrAllocation                   = errors.New("vkdecode: device allocation failed")
)

// Usage errors.
var (
	ErrDecoderClosed      = errors.New("vkdecode: decoder closed")
	ErrNilPicture         = errors.New("vkdecode: picture is nil")
	ErrNoImage            = errors.New("vkdecode: picture has no backing image")
	ErrPictureNotPrepared = errors.New("vkdecode: picture not prepared")
	ErrTooManyReferences  = errors.New("vkdecode: too many reference pictures")
	ErrNoSliceData        = errors.New("vkdecode: picture has no slice data")
	ErrIncompleteDevice   = errors.New("vkdecode: device is missing a backend")
	ErrSliceTooLarge      = errors.New("vkdecode: slice data exceeds 4 GiB")
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageNegotiate Stage = "negotiate"
	StageSession   Stage = "session"
	StagePrepare   Stage = "prepare"
	StageSlice     Stage = "slice"
	StageSubmit    Stage = "submit"
	StageFlush     Stage = "flush"
	StageRelease   Stage = "release"
	StageTeardown  Stage = "teardown"
)

// StageError carries the failing stage, the error kind and the underlying
// backend error. It unwraps to both Kind and Err.
type StageError struct {
	Stage Stage
	Kind  error
	Code  string
	Err   error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("vkdecode: %s failed", e.Stage)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the error kind and the underlying error.
func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// stageError wraps err for stage. An existing StageError is returned as is
// so inner stages keep their attribution.
func stageError(stage Stage, code string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Kind: classify(err), Code: code, Err: err}
}

// stageErrorKind is stageError with an explicit kind.
func stageErrorKind(stage Stage, kind error, code string, err error) error {
	return &StageError{Stage: stage, Kind: kind, Code: code, Err: err}
}

// classify maps an arbitrary error to its kind.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		return ErrInvalidConfiguration
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrFeatureNotPresent):
		return ErrUnsupported
	case errors.Is(err, ErrOutOfMemory), errors.Is(err, ErrAllocation):
		return ErrOutOfMemory
	case errors.Is(err, ErrDriverContractViolation):
		return ErrDriverContractViolation
	case errors.Is(err, ErrProfileOperationNotSupported),
		errors.Is(err, ErrProfileFormatNotSupported),
		errors.Is(err, ErrFormatNotSupported):
		return ErrInvalidConfiguration
	case errors.Is(err, ErrDecoderClosed),
		errors.Is(err, ErrNilPicture),
		errors.Is(err, ErrNoImage),
		errors.Is(err, ErrPictureNotPrepared),
		errors.Is(err, ErrTooManyReferences),
		errors.Is(err, ErrNoSliceData),
		errors.Is(err, ErrIncompleteDevice):
		return ErrInvalidConfiguration
	case errors.Is(err, ErrSliceTooLarge):
		return ErrOutOfMemory
	default:
		return ErrExternalDevice
	}
}
