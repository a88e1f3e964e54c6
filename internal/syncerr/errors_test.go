package syncerr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"mismatch", Mismatch("name", "missing"), ErrSchemaMismatch},
		{"transport", &TransportError{Op: "query", Err: io.ErrUnexpectedEOF}, ErrTransport},
		{"rejected", &RejectedError{Op: "create", StatusCode: 400}, ErrRejected},
		{"sync failed", &SyncFailedError{Job: "export", Cause: io.EOF}, ErrSyncFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	err := &TransportError{Op: "query", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "query")

	withStatus := &TransportError{Op: "query", StatusCode: 429, Err: errors.New("rate limited")}
	assert.Contains(t, withStatus.Error(), "HTTP 429")
}

func TestRejectedErrorMessage(t *testing.T) {
	err := &RejectedError{Op: "create page", StatusCode: 400, Code: "validation_error", Message: "Tags is not a property"}
	assert.Equal(t, "create page: rejected (HTTP 400 validation_error): Tags is not a property", err.Error())
}

func TestSyncFailedErrorWalksItemFailures(t *testing.T) {
	err := &SyncFailedError{
		Job:   "import",
		Total: 3,
		Failures: []ItemFailure{
			{Item: "a/b@1.0.0", Err: &RejectedError{Op: "upsert", StatusCode: 400}},
		},
	}

	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.ErrorIs(t, err, ErrRejected)
	assert.True(t, err.Partial())

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 400, rejected.StatusCode)
}

func TestSyncFailedErrorPartial(t *testing.T) {
	all := &SyncFailedError{Job: "import", Total: 2, Failures: []ItemFailure{
		{Item: "a", Err: io.EOF}, {Item: "b", Err: io.EOF},
	}}
	assert.False(t, all.Partial())
	assert.Contains(t, all.Error(), "2 of 2 items failed")

	aborted := &SyncFailedError{Job: "export", Cause: io.EOF}
	assert.False(t, aborted.Partial())
}

func TestClassifiers(t *testing.T) {
	transport := &TransportError{Op: "x", Err: io.EOF}
	rejected := &RejectedError{Op: "x"}
	mismatch := Mismatch("", "bad")

	assert.True(t, IsRetryable(transport))
	assert.False(t, IsRetryable(rejected))
	assert.False(t, IsRetryable(nil))

	assert.True(t, IsPermanent(rejected))
	assert.True(t, IsPermanent(mismatch))
	assert.False(t, IsPermanent(transport))
	assert.False(t, IsPermanent(nil))
}
