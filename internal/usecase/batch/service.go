// Package batch indexes and removes repository resources in bulk.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/vortikal/vxsearch/internal/domain"
	"github.com/vortikal/vxsearch/internal/domain/schema"
)

// MaxBatchSize is the default maximum number of items per batch.
const MaxBatchSize = 500

// Resource is a repository resource as submitted for indexing.
type Resource struct {
	URI        string                 `json:"uri"`
	ACLRead    []string               `json:"acl_read,omitempty"`
	Properties map[string]interface{} `json:"properties"`
}

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of processing one item.
type Result struct {
	URI    string
	Status ItemStatus
	Err    error
}

func okResult(uri string) Result             { return Result{URI: uri, Status: StatusOK} }
func errResult(uri string, err error) Result { return Result{URI: uri, Status: StatusError, Err: err} }

// Summary counts the outcome of a load.
type Summary struct {
	Indexed int
	Failed  int
}

// Service validates resources against the schema and writes them to the index.
type Service struct {
	index        IndexUpdater
	schema       schema.Schema
	maxBatchSize int
	logger       *zap.Logger
}

// New creates a batch service.
func New(index IndexUpdater, sch schema.Schema, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, schema: sch, maxBatchSize: MaxBatchSize, logger: logger}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Upsert indexes resources in one index batch. Invalid items are reported
// individually; valid ones are written together.
func (s *Service) Upsert(ctx context.Context, items []Resource) []Result {
	results := make([]Result, len(items))

	if len(items) > s.maxBatchSize {
		for i, item := range items {
			results[i] = errResult(item.URI, fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrInvalidResource))
		}
		return results
	}
	if err := ctx.Err(); err != nil {
		for i, item := range items {
			results[i] = errResult(item.URI, err)
		}
		return results
	}

	docs := make(map[int]map[string]interface{}, len(items))
	for i := range items {
		doc, err := s.document(&items[i])
		if err != nil {
			results[i] = errResult(items[i].URI, err)
			continue
		}
		docs[i] = doc
	}
	if len(docs) == 0 {
		return results
	}

	err := s.index.Update(func(b *bleve.Batch) error {
		for i, doc := range docs {
			if err := b.Index(items[i].URI, doc); err != nil {
				return fmt.Errorf("index %s: %w", items[i].URI, err)
			}
		}
		return nil
	})
	for i := range docs {
		if err != nil {
			results[i] = errResult(items[i].URI, fmt.Errorf("batch upsert: %w", err))
			continue
		}
		results[i] = okResult(items[i].URI)
	}
	return results
}

// Delete removes resources by URI in one index batch.
func (s *Service) Delete(ctx context.Context, uris []string) []Result {
	results := make([]Result, len(uris))

	if len(uris) > s.maxBatchSize {
		for i, uri := range uris {
			results[i] = errResult(uri, fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrInvalidResource))
		}
		return results
	}
	if err := ctx.Err(); err != nil {
		for i, uri := range uris {
			results[i] = errResult(uri, err)
		}
		return results
	}

	err := s.index.Update(func(b *bleve.Batch) error {
		for _, uri := range uris {
			b.Delete(uri)
		}
		return nil
	})
	for i, uri := range uris {
		if err != nil {
			results[i] = errResult(uri, fmt.Errorf("batch delete: %w", err))
			continue
		}
		results[i] = okResult(uri)
	}
	return results
}

// LoadJSONLines reads one Resource per line from r and indexes them in
// batches of the configured size. Malformed lines count as failures.
func (s *Service) LoadJSONLines(ctx context.Context, r io.Reader) (Summary, error) {
	var sum Summary
	pending := make([]Resource, 0, s.maxBatchSize)

	flush := func() {
		for _, res := range s.Upsert(ctx, pending) {
			if res.Status == StatusOK {
				sum.Indexed++
				continue
			}
			sum.Failed++
			s.logger.Warn("Resource rejected", zap.String("uri", res.URI), zap.Error(res.Err))
		}
		pending = pending[:0]
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var res Resource
		if err := json.Unmarshal(raw, &res); err != nil {
			sum.Failed++
			s.logger.Warn("Malformed resource line", zap.Int("line", line), zap.Error(err))
			continue
		}
		pending = append(pending, res)
		if len(pending) == s.maxBatchSize {
			flush()
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
	}
	if err := sc.Err(); err != nil {
		return sum, fmt.Errorf("read resources: %w", err)
	}
	if len(pending) > 0 {
		flush()
	}
	return sum, nil
}

// document converts a resource to the field map stored in the index.
func (s *Service) document(r *Resource) (map[string]interface{}, error) {
	if r.URI == "" {
		return nil, fmt.Errorf("uri is required: %w", domain.ErrInvalidResource)
	}
	doc := make(map[string]interface{}, len(r.Properties)+2)
	for name, v := range r.Properties {
		p, found := s.schema.Lookup(name)
		if !found || name == schema.URI || name == schema.ACLRead {
			return nil, fmt.Errorf("unknown property %q: %w", name, domain.ErrInvalidResource)
		}
		if err := checkType(p, v); err != nil {
			return nil, err
		}
		doc[name] = v
	}

	acl := r.ACLRead
	if len(acl) == 0 {
		acl = []string{domain.PseudoAll}
	}
	doc[schema.URI] = r.URI
	doc[schema.ACLRead] = acl
	return doc, nil
}

// checkType accepts a scalar of the property's type or a list of them.
func checkType(p schema.Property, v interface{}) error {
	if list, isList := v.([]interface{}); isList {
		for _, item := range list {
			if err := checkType(p, item); err != nil {
				return err
			}
		}
		return nil
	}
	var valid bool
	switch p.Type() {
	case schema.Number:
		switch v.(type) {
		case float64, float32, int, int64:
			valid = true
		}
	case schema.Boolean:
		_, valid = v.(bool)
	default:
		_, valid = v.(string)
	}
	if !valid {
		return fmt.Errorf("property %q expects %s, got %T: %w", p.Name(), p.Type(), v, domain.ErrInvalidResource)
	}
	return nil
}
