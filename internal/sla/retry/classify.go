package retry

import (
	"search-platform/internal/common/errors"
)

// FailureSource buckets a processing error for redo-policy lookup.
// Policies are configured per source, so a flaky RPC dependency can
// carry a different budget than a slow Elasticsearch cluster.
type FailureSource string

const (
	SourceRPC     FailureSource = "rpc_error"
	SourceHTTP    FailureSource = "http_error"
	SourceESTime  FailureSource = "es_timeout"
	SourceES      FailureSource = "es_error"
	SourceProcess FailureSource = "process_error"
)

// ClassifyFailure maps an error to its source bucket. Unknown errors
// land in process_error, which is never retryable.
func ClassifyFailure(err error) FailureSource {
	switch errors.CodeOf(err) {
	case errors.ErrCodeRPCError:
		return SourceRPC
	case errors.ErrCodeHTTPError:
		return SourceHTTP
	case errors.ErrCodeESTimeout:
		return SourceESTime
	case errors.ErrCodeESError, errors.ErrCodeBackendUnavailable, errors.ErrCodeBulkPartialFailure:
		return SourceES
	default:
		return SourceProcess
	}
}

// Retryable reports whether the source class is eligible for retry at
// all; policy budgets only apply on top of this.
func (s FailureSource) Retryable() bool {
	return s != SourceProcess
}
