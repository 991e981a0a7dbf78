// internal/sla/retry/classify_test.go
package retry

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"search-platform/internal/common/errors"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureSource
	}{
		{"rpc", errors.NewRPCError(stderrors.New("conn refused")), SourceRPC},
		{"http", errors.NewHTTPError(stderrors.New("502")), SourceHTTP},
		{"es timeout", errors.NewESTimeoutError("read timeout"), SourceESTime},
		{"es error", errors.NewESError(stderrors.New("mapping conflict")), SourceES},
		{"backend unavailable", errors.NewBackendUnavailableError(stderrors.New("no route")), SourceES},
		{"bulk partial failure", errors.NewBulkPartialFailureError(nil), SourceES},
		{"process", errors.NewProcessError(stderrors.New("nil payload")), SourceProcess},
		{"plain error", stderrors.New("anything else"), SourceProcess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFailure(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, SourceRPC.Retryable())
	assert.True(t, SourceHTTP.Retryable())
	assert.True(t, SourceESTime.Retryable())
	assert.True(t, SourceES.Retryable())
	assert.False(t, SourceProcess.Retryable())
}
