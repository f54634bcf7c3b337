package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	require.Equal(t, "none", Kind(nil))
	require.Equal(t, "malformed_submission", Kind(fmt.Errorf("pair %q: %w", "x", ErrMalformedSubmission)))
	require.Equal(t, "io_failure", Kind(fmt.Errorf("write: %w", ErrIOFailure)))
	require.Equal(t, "bad_request", Kind(ErrBadRequest))
	require.Equal(t, "unknown", Kind(errors.New("boom")))
}
