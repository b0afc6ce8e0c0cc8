// Package search provides an on-disk search index split into named partitions.
// Each partition is its own bleve index under a root directory
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	perr "dayfill/internal/platform/errors"
	"dayfill/internal/platform/logger"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// DefaultPartition is the directory used for the empty partition name
const DefaultPartition = "default"

// TypeField carries the record type on every document; bleve resolves document mappings from it
const TypeField = "_type"

// Index owns the open partitions under root
type Index struct {
	root     string
	keyField string
	log      logger.Logger

	mu    sync.Mutex
	parts map[string]bleve.Index
}

// Option mutates Index during Open
type Option func(*Index)

// WithKeyField maps field as an exact-match keyword in partitions created from now on
func WithKeyField(field string) Option { return func(x *Index) { x.keyField = field } }

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option { return func(x *Index) { x.log = log } }

// Open prepares root; partitions are opened lazily
func Open(root string, opts ...Option) (*Index, error) {
	if strings.TrimSpace(root) == "" {
		return nil, perr.InvalidArgf("search: empty index dir")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIndex, "search: create root %s", root)
	}
	x := &Index{root: root, log: *logger.Named("search"), parts: map[string]bleve.Index{}}
	for _, o := range opts {
		o(x)
	}
	return x, nil
}

// CreatePartition makes name ready for writes. An existing partition is reused
func (x *Index) CreatePartition(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := x.partition(name)
	return err
}

// BulkWrite indexes docs into partition as one batch, keyed by doc[keyField] and tagged with docType.
// A doc with the same key replaces the earlier one
func (x *Index) BulkWrite(ctx context.Context, partition, docType string, docs []map[string]any, keyField string) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	idx, err := x.partition(partition)
	if err != nil {
		return err
	}

	b := idx.NewBatch()
	for i, d := range docs {
		id, ok := docKey(d, keyField)
		if !ok {
			return perr.Indexf("search: doc %d in %s has no %q", i, dirName(partition), keyField)
		}
		body := make(map[string]any, len(d)+1)
		for k, v := range d {
			body[k] = v
		}
		body[TypeField] = docType
		if err := b.Index(id, body); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeIndex, "search: stage doc %s", id)
		}
	}
	if err := idx.Batch(b); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIndex, "search: bulk write %d docs to %s", len(docs), dirName(partition))
	}
	x.log.Debug().Str("partition", dirName(partition)).Int("docs", len(docs)).Msg("bulk write")
	return nil
}

// DocCount returns the number of documents in partition
func (x *Index) DocCount(partition string) (uint64, error) {
	idx, err := x.partition(partition)
	if err != nil {
		return 0, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeIndex, "search: doc count")
	}
	return n, nil
}

// Has reports whether a document with id exists in partition
func (x *Index) Has(partition, id string) (bool, error) {
	idx, err := x.partition(partition)
	if err != nil {
		return false, err
	}
	res, err := idx.Search(bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id})))
	if err != nil {
		return false, perr.Wrap(err, perr.ErrorCodeIndex, "search: lookup")
	}
	return res.Total > 0, nil
}

// Partitions lists the partition directories opened by this process, sorted
func (x *Index) Partitions() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]string, 0, len(x.parts))
	for name := range x.parts {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Close closes every open partition
func (x *Index) Close() error {
	if parts := x.Partitions(); len(parts) > 0 {
		x.log.Info().Strs("partitions", parts).Msg("closing search partitions")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	var errs []error
	for name, idx := range x.parts {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		delete(x.parts, name)
	}
	return errors.Join(errs...)
}

func (x *Index) partition(name string) (bleve.Index, error) {
	dir := dirName(name)

	x.mu.Lock()
	defer x.mu.Unlock()
	if idx, ok := x.parts[dir]; ok {
		return idx, nil
	}

	path := filepath.Join(x.root, dir)
	idx, err := bleve.New(path, x.newMapping())
	if errors.Is(err, bleve.ErrorIndexPathExists) {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIndex, "search: open partition %s", dir)
	}
	x.parts[dir] = idx
	return idx, nil
}

func (x *Index) newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	dm := bleve.NewDocumentMapping()
	kw := bleve.NewKeywordFieldMapping()
	dm.AddFieldMappingsAt(TypeField, kw)
	if x.keyField != "" && !strings.Contains(x.keyField, ".") {
		dm.AddFieldMappingsAt(x.keyField, kw)
	}
	im.DefaultMapping = dm
	return im
}

// dirName maps a partition name to a single safe directory component
func dirName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return DefaultPartition
	}
	return strings.NewReplacer("/", "_", `\`, "_").Replace(name)
}

// docKey renders the key field as a document id
func docKey(d map[string]any, keyField string) (string, bool) {
	v, ok := d[keyField]
	if !ok || v == nil {
		return "", false
	}
	id := fmt.Sprint(v)
	return id, id != ""
}
