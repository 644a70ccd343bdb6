package coreerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoreErrorUnwrapsToSentinel(t *testing.T) {
	err := New(KindFailedContractAuthentication, errors.New("bad tag"))
	assert.True(t, errors.Is(err, ErrFailedContractAuthentication))
	assert.False(t, errors.Is(err, ErrDecryptionError))
}

func TestWrapFormatsCause(t *testing.T) {
	err := Wrap(KindValidationFailure, "prefix mismatch: got %q", "zz")
	assert.Contains(t, err.Error(), "ValidationFailure")
	assert.Contains(t, err.Error(), "zz")
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Kind(999).String())
}
