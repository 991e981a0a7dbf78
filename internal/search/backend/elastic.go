// internal/search/backend/elastic.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"search-platform/internal/common/errors"
	"search-platform/internal/common/logger"
	"search-platform/internal/common/metrics"
)

// Elastic implements SearchBackend on go-elasticsearch.
type Elastic struct {
	client *elasticsearch.Client
	logger logger.Logger
}

func NewElastic(client *elasticsearch.Client, log logger.Logger) *Elastic {
	return &Elastic{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "backend"}),
	}
}

func (e *Elastic) Search(ctx context.Context, index string, body map[string]interface{}) (*Result, error) {
	started := time.Now()
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(payload)),
	)
	metrics.BackendDuration.WithLabelValues("search").Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues("search", "error").Inc()
		return nil, errors.NewBackendUnavailableError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.BackendRequests.WithLabelValues("search", "error").Inc()
		return nil, e.statusError(res)
	}
	metrics.BackendRequests.WithLabelValues("search", "ok").Inc()

	return decodeSearchResult(res.Body)
}

func (e *Elastic) MultiSearch(ctx context.Context, index string, bodies []map[string]interface{}) ([]*Result, error) {
	var buf bytes.Buffer
	header, _ := json.Marshal(map[string]interface{}{"index": index})
	for _, body := range bodies {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal msearch body: %w", err)
		}
		buf.Write(header)
		buf.WriteByte('\n')
		buf.Write(payload)
		buf.WriteByte('\n')
	}

	res, err := e.client.Msearch(
		&buf,
		e.client.Msearch.WithContext(ctx),
	)
	if err != nil {
		metrics.BackendRequests.WithLabelValues("msearch", "error").Inc()
		return nil, errors.NewBackendUnavailableError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.BackendRequests.WithLabelValues("msearch", "error").Inc()
		return nil, e.statusError(res)
	}
	metrics.BackendRequests.WithLabelValues("msearch", "ok").Inc()

	var envelope struct {
		Responses []json.RawMessage `json:"responses"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode msearch response: %w", err)
	}

	out := make([]*Result, 0, len(envelope.Responses))
	for _, raw := range envelope.Responses {
		r, err := decodeSearchResult(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Elastic) Bulk(ctx context.Context, ops []BulkOp) (*BulkResult, error) {
	var buf bytes.Buffer
	for _, op := range ops {
		action := map[string]interface{}{
			op.Action: map[string]interface{}{"_index": op.Index, "_id": op.ID},
		}
		line, _ := json.Marshal(action)
		buf.Write(line)
		buf.WriteByte('\n')
		if op.Action != "delete" {
			doc, err := json.Marshal(op.Doc)
			if err != nil {
				return nil, fmt.Errorf("marshal bulk doc: %w", err)
			}
			buf.Write(doc)
			buf.WriteByte('\n')
		}
	}

	res, err := e.client.Bulk(
		&buf,
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		metrics.BackendRequests.WithLabelValues("bulk", "error").Inc()
		return nil, errors.NewBackendUnavailableError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.BackendRequests.WithLabelValues("bulk", "error").Inc()
		return nil, e.statusError(res)
	}

	var body struct {
		Took   int64 `json:"took"`
		Errors bool  `json:"errors"`
		Items  []map[string]map[string]interface{}
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	result := &BulkResult{Took: body.Took}
	if body.Errors {
		for _, item := range body.Items {
			for _, detail := range item {
				if errObj, ok := detail["error"]; ok && errObj != nil {
					result.Failed = append(result.Failed, detail)
				}
			}
		}
		metrics.BackendRequests.WithLabelValues("bulk", "partial").Inc()
		return result, errors.NewBulkPartialFailureError(result.Failed)
	}
	metrics.BackendRequests.WithLabelValues("bulk", "ok").Inc()
	return result, nil
}

func (e *Elastic) Analyze(ctx context.Context, index, analyzer, text string) ([]string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"analyzer": analyzer,
		"text":     text,
	})

	req := esapi.IndicesAnalyzeRequest{
		Index: index,
		Body:  strings.NewReader(string(body)),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		metrics.BackendRequests.WithLabelValues("analyze", "error").Inc()
		return nil, errors.NewBackendUnavailableError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.BackendRequests.WithLabelValues("analyze", "error").Inc()
		return nil, e.statusError(res)
	}
	metrics.BackendRequests.WithLabelValues("analyze", "ok").Inc()

	var envelope struct {
		Tokens []struct {
			Token string `json:"token"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}

	tokens := make([]string, 0, len(envelope.Tokens))
	for _, t := range envelope.Tokens {
		tokens = append(tokens, t.Token)
	}
	return tokens, nil
}

func (e *Elastic) Suggest(ctx context.Context, index string, body map[string]interface{}) (*Result, error) {
	return e.Search(ctx, index, body)
}

func (e *Elastic) statusError(res *esapi.Response) error {
	msg := res.String()
	e.logger.Error("backend request failed", map[string]interface{}{
		"status": res.Status(),
	})
	if res.StatusCode == 408 || res.StatusCode == 504 {
		return errors.NewESTimeoutError(msg)
	}
	return errors.NewESError(fmt.Errorf("elasticsearch: %s", res.Status()))
}

func decodeSearchResult(r io.Reader) (*Result, error) {
	var body struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			MaxScore float64 `json:"max_score"`
			Hits     []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]interface{} `json:"aggregations"`
		Suggest      map[string]interface{} `json:"suggest"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	result := &Result{
		Total:        body.Hits.Total.Value,
		MaxScore:     body.Hits.MaxScore,
		Took:         body.Took,
		Aggregations: body.Aggregations,
		Suggest:      body.Suggest,
	}
	for _, h := range body.Hits.Hits {
		result.Hits = append(result.Hits, h.Source)
	}
	return result, nil
}
