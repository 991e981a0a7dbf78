// Package backend defines the Search Backend capability the query
// orchestrator depends on, plus its Elasticsearch implementation.
package backend

import "context"

// Result is a parsed search response.
type Result struct {
	Total        int64
	MaxScore     float64
	Took         int64
	Hits         []map[string]interface{}
	Aggregations map[string]interface{}
	Suggest      map[string]interface{}
}

// BulkOp is one operation of a bulk write.
type BulkOp struct {
	Action string // index, create, update, delete
	Index  string
	ID     string
	Doc    map[string]interface{}
}

// BulkResult reports per-item outcomes of a bulk write. Failed holds
// the descriptors of items that were rejected; the caller decides what
// to do with them.
type BulkResult struct {
	Took   int64
	Failed []map[string]interface{}
}

// SearchBackend is the abstract search capability. Implementations own
// connection pooling and request timeouts.
type SearchBackend interface {
	Search(ctx context.Context, index string, body map[string]interface{}) (*Result, error)
	MultiSearch(ctx context.Context, index string, bodies []map[string]interface{}) ([]*Result, error)
	Bulk(ctx context.Context, ops []BulkOp) (*BulkResult, error)
	Analyze(ctx context.Context, index, analyzer, text string) ([]string, error)
	Suggest(ctx context.Context, index string, body map[string]interface{}) (*Result, error)
}
