// Package replay provides the memory-mapped reader pool and the k-way
// merge engine that reconstructs a globally time-ordered tick stream from
// many per-symbol segments.
package replay

import (
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/segment"
	"github.com/arloliu/ndts/table"
)

// pageSize is the stride used to touch mapped pages during prefetch.
const pageSize = 4096

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger supplies a logger; the default is a nop logger.
func WithPoolLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Pool owns one read-only segment mapping per symbol. Column views handed
// out by the pool are borrowed from the mappings and must not outlive it:
// Close invalidates every outstanding view.
type Pool struct {
	logger  *zap.Logger
	readers map[string]*segment.Reader
	symbols []string
	closed  bool
}

// Init maps ${baseDir}/${symbol}.ndts for each symbol. Mapping failures
// are logged and the symbol skipped; the pool retains the successfully
// mapped symbols in the given order, which also fixes the tie-break order
// of merged replay.
func Init(symbols []string, baseDir string, opts ...PoolOption) (*Pool, error) {
	p := &Pool{
		logger:  zap.NewNop(),
		readers: make(map[string]*segment.Reader, len(symbols)),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, symbol := range symbols {
		path := filepath.Join(baseDir, symbol+".ndts")
		reader, err := segment.OpenReader(path)
		if err != nil {
			p.logger.Warn("skipping symbol segment",
				zap.String("symbol", symbol),
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		p.readers[symbol] = reader
		p.symbols = append(p.symbols, symbol)
	}

	return p, nil
}

// Symbols returns the mapped symbols in insertion order.
func (p *Pool) Symbols() []string { return p.symbols }

// Reader returns the segment reader of a symbol.
func (p *Pool) Reader(symbol string) (*segment.Reader, error) {
	if p.closed {
		return nil, errs.Wrap(errs.KindIo, errs.ErrPoolClosed, "pool")
	}

	reader, ok := p.readers[symbol]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "symbol %q not mapped", symbol)
	}

	return reader, nil
}

// Column returns a typed borrow of the named column of a symbol's
// segment.
func (p *Pool) Column(symbol, name string) (*table.Column, error) {
	reader, err := p.Reader(symbol)
	if err != nil {
		return nil, err
	}

	return reader.Column(name)
}

// RowCount returns the row count of a symbol's segment.
func (p *Pool) RowCount(symbol string) (int, error) {
	reader, err := p.Reader(symbol)
	if err != nil {
		return 0, err
	}

	return reader.RowCount(), nil
}

// Prefetch touches the pages spanning the requested columns to warm the
// OS page cache, one goroutine per column.
func (p *Pool) Prefetch(symbol string, columns []string) error {
	reader, err := p.Reader(symbol)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, name := range columns {
		g.Go(func() error {
			col, err := reader.Column(name)
			if err != nil {
				return err
			}
			touchColumn(col)
			return nil
		})
	}

	return g.Wait()
}

func touchColumn(col *table.Column) {
	n := col.Len()
	if n == 0 {
		return
	}

	stride := pageSize / 8
	if w := col.Type().Width(); w > 0 {
		stride = pageSize / w
	}
	if stride == 0 {
		stride = 1
	}

	var sink table.Value
	for i := 0; i < n; i += stride {
		sink = col.Value(i)
	}
	_ = sink
}

// Close unmaps every segment. Outstanding column views become invalid.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for symbol, reader := range p.readers {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.readers, symbol)
	}

	return firstErr
}
