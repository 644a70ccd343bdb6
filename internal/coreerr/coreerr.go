// Package coreerr defines the flat, host-visible error taxonomy the
// dispatcher surfaces for every call. Callers outside the package should
// compare against the sentinel values with errors.Is, never against Kind
// strings.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the fixed set of failure categories the core can
// report to the host. The host translates a Kind into an on-chain error
// code; this package never formats user-facing strings.
type Kind int

const (
	// KindUnknown is the zero value and should never be observed outside
	// of a zero-valued CoreError.
	KindUnknown Kind = iota
	KindFailedToDeserialize
	KindFailedToSerialize
	KindFailedTxVerification
	KindFailedContractAuthentication
	KindValidationFailure
	KindFailedFunctionCall
	KindDecryptionError
	KindEncryptionError
)

func (k Kind) String() string {
	switch k {
	case KindFailedToDeserialize:
		return "FailedToDeserialize"
	case KindFailedToSerialize:
		return "FailedToSerialize"
	case KindFailedTxVerification:
		return "FailedTxVerification"
	case KindFailedContractAuthentication:
		return "FailedContractAuthentication"
	case KindValidationFailure:
		return "ValidationFailure"
	case KindFailedFunctionCall:
		return "FailedFunctionCall"
	case KindDecryptionError:
		return "DecryptionError"
	case KindEncryptionError:
		return "EncryptionError"
	default:
		return "Unknown"
	}
}

// Sentinel errors, one per Kind, so call sites can use errors.Is without
// reaching into a CoreError.
var (
	ErrFailedToDeserialize         = errors.New("failed to deserialize")
	ErrFailedToSerialize           = errors.New("failed to serialize")
	ErrFailedTxVerification        = errors.New("failed tx verification")
	ErrFailedContractAuthentication = errors.New("failed contract authentication")
	ErrValidationFailure           = errors.New("validation failure")
	ErrFailedFunctionCall          = errors.New("failed function call")
	ErrDecryptionError              = errors.New("decryption error")
	ErrEncryptionError              = errors.New("encryption error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindFailedToDeserialize:
		return ErrFailedToDeserialize
	case KindFailedToSerialize:
		return ErrFailedToSerialize
	case KindFailedTxVerification:
		return ErrFailedTxVerification
	case KindFailedContractAuthentication:
		return ErrFailedContractAuthentication
	case KindValidationFailure:
		return ErrValidationFailure
	case KindFailedFunctionCall:
		return ErrFailedFunctionCall
	case KindDecryptionError:
		return ErrDecryptionError
	case KindEncryptionError:
		return ErrEncryptionError
	default:
		return errors.New("unknown core error")
	}
}

// CoreError wraps a Kind and an underlying cause. It is the type every
// exported operation returns on failure.
type CoreError struct {
	Kind  Kind
	Cause error
}

func (e *CoreError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *CoreError) Unwrap() error {
	return sentinelFor(e.Kind)
}

// New builds a CoreError of the given kind wrapping cause. cause may be nil.
func New(k Kind, cause error) *CoreError {
	return &CoreError{Kind: k, Cause: cause}
}

// Wrap is a convenience for New(k, fmt.Errorf(format, args...)).
func Wrap(k Kind, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: k, Cause: fmt.Errorf(format, args...)}
}
