// Package bolt is a table.Repository stored in a local bbolt file.
//
// Each table is a top-level bucket. Rows are msgpack-encoded and keyed by
// partition key then row key, so a cursor walks one partition contiguously.
// Writes run inside a bbolt read-write transaction, which serializes them;
// mutators therefore never observe a conflict and must not call back into
// the repository.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/table"
)

// Options configures Open.
type Options struct {
	// Timeout bounds waiting for the file lock. Default: 10s.
	Timeout time.Duration

	// IsTesting trades durability for speed.
	IsTesting bool

	// Now returns the commit timestamp. Default: time.Now.
	Now func() time.Time
}

// Repository is a bbolt-backed table.Repository.
type Repository struct {
	bdb *bbolt.DB
	now func() time.Time
}

var (
	_ table.Repository = (*Repository)(nil)
	_ table.Scanner    = (*Repository)(nil)
)

// Open opens or creates the database file at path.
func Open(path string, opt Options) (*Repository, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.Timeout > 0 {
		bopt.Timeout = opt.Timeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Repository{bdb: bdb, now: opt.Now}, nil
}

// Close closes the database file.
func (r *Repository) Close() error {
	return r.bdb.Close()
}

// Bolt returns the underlying database.
func (r *Repository) Bolt() *bbolt.DB {
	return r.bdb
}

// rowKey encodes key as uvarint(len(partition)) + partition + row.
func rowKey(key cell.Key) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(key.PartitionKey)+len(key.RowKey))
	buf = binary.AppendUvarint(buf, uint64(len(key.PartitionKey)))
	buf = append(buf, key.PartitionKey...)
	return append(buf, key.RowKey...)
}

func parseRowKey(b []byte) (cell.Key, error) {
	n, sz := binary.Uvarint(b)
	if sz <= 0 || uint64(len(b)-sz) < n {
		return cell.Key{}, fmt.Errorf("bolt: malformed row key %x", b)
	}
	b = b[sz:]
	return cell.Key{PartitionKey: string(b[:n]), RowKey: string(b[n:])}, nil
}

func get(buck *bbolt.Bucket, key cell.Key) (*table.Row, error) {
	if buck == nil {
		return nil, nil
	}
	raw := buck.Get(rowKey(key))
	if raw == nil {
		return nil, nil
	}
	return decodeRow(key, raw)
}

func (r *Repository) put(buck *bbolt.Bucket, row *table.Row, etag int64) (*table.Row, error) {
	stored := row.Clone()
	stored.ETag = etag + 1
	stored.Timestamp = r.now().UTC()
	if stored.Cells == nil {
		stored.Cells = cell.Bag{}
	}
	raw, err := encodeRow(stored)
	if err != nil {
		return nil, err
	}
	if err := buck.Put(rowKey(row.Key), raw); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *Repository) Find(ctx context.Context, tbl string, key cell.Key) (*table.Row, error) {
	var row *table.Row
	err := r.bdb.View(func(btx *bbolt.Tx) error {
		var err error
		row, err = get(btx.Bucket([]byte(tbl)), key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, table.ErrNotFound
	}
	return row, nil
}

func (r *Repository) CreateOrGet(ctx context.Context, tbl string, key cell.Key, init table.Mutator) (bool, *table.Row, error) {
	var created bool
	var row *table.Row
	err := r.bdb.Update(func(btx *bbolt.Tx) error {
		buck, err := btx.CreateBucketIfNotExists([]byte(tbl))
		if err != nil {
			return err
		}
		if row, err = get(buck, key); err != nil || row != nil {
			return err
		}
		next := &table.Row{Key: key, Cells: cell.Bag{}}
		if err := init(next); err != nil {
			return err
		}
		next.Key = key
		row, err = r.put(buck, next, 0)
		created = err == nil
		return err
	})
	if err != nil {
		return false, nil, err
	}
	return created, row, nil
}

func (r *Repository) Update(ctx context.Context, tbl string, key cell.Key, mutate table.Mutator) (*table.Row, error) {
	var row *table.Row
	err := r.bdb.Update(func(btx *bbolt.Tx) error {
		buck := btx.Bucket([]byte(tbl))
		current, err := get(buck, key)
		if err != nil {
			return err
		}
		if current == nil {
			return table.ErrNotFound
		}
		next := current.Clone()
		if err := mutate(next); errors.Is(err, table.ErrNoChange) {
			row = current
			return nil
		} else if err != nil {
			return err
		}
		next.Key = key
		row, err = r.put(buck, next, current.ETag)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *Repository) Delete(ctx context.Context, tbl string, key cell.Key) (*table.Row, error) {
	var row *table.Row
	err := r.bdb.Update(func(btx *bbolt.Tx) error {
		buck := btx.Bucket([]byte(tbl))
		var err error
		if row, err = get(buck, key); err != nil {
			return err
		}
		if row == nil {
			return table.ErrNotFound
		}
		return buck.Delete(rowKey(key))
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Scan reads the table in one read transaction, then calls fn outside it so
// that fn may write to the repository.
func (r *Repository) Scan(ctx context.Context, tbl string, fn func(*table.Row) error) error {
	var rows []*table.Row
	err := r.bdb.View(func(btx *bbolt.Tx) error {
		buck := btx.Bucket([]byte(tbl))
		if buck == nil {
			return nil
		}
		return buck.ForEach(func(k, v []byte) error {
			key, err := parseRowKey(k)
			if err != nil {
				return err
			}
			row, err := decodeRow(key, v)
			if err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}
