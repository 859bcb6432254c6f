// Package badgerfetcher implements catalog.Fetcher over an embedded
// BadgerDB, the same key-value engine the teacher's keyValStore package
// wraps for chunk storage. Catalogs and tag histories are encoded to the
// protobuf wire form (pkg/fetcher/badgerfetcher/wire), lzma-compressed, and
// stored under content-derived keys, so an on-disk repository can be
// traversed without rebuilding fixtures in memory.
package badgerfetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/ulikunitz/xz/lzma"
	"golang.org/x/crypto/blake2b"

	"github.com/i5heu/catgraph/pkg/catalog"
	"github.com/i5heu/catgraph/pkg/catgraphlog"
	"github.com/i5heu/catgraph/pkg/fetcher/badgerfetcher/wire"
)

var (
	keyHead        = []byte("meta:head")
	keyTagHistory  = []byte("meta:tagHistory")
	prefixCatalog  = []byte("cat:")
	prefixHistBlob = []byte("hist:")
)

// Options configures a Fetcher.
type Options struct {
	// Path is the directory BadgerDB stores its files under.
	Path string

	// Salt keys the blake2b hash used to derive the tag-history blob's
	// storage key, so that two repositories sharing a Badger instance
	// (not a supported deployment, but cheap to guard against) cannot
	// collide on that one well-known slot. Defaults to a fixed constant
	// if unset; set to a repository-specific value in multi-tenant use.
	Salt []byte

	Logger *slog.Logger
}

// Fetcher is a BadgerDB-backed catalog.Fetcher. It is safe for concurrent
// use, including concurrent FetchCatalog calls from the parallel traversal
// engine; Badger transactions serialize access internally.
type Fetcher struct {
	db     *badger.DB
	salt   []byte
	logger *slog.Logger

	readCounter  atomic.Uint64
	writeCounter atomic.Uint64
}

var defaultSalt = []byte("catgraph:tag-history:v1")

// Open opens (creating if absent) the BadgerDB store at opts.Path.
func Open(opts Options) (*Fetcher, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("badgerfetcher: Options.Path is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = catgraphlog.Default
	}

	salt := opts.Salt
	if salt == nil {
		salt = defaultSalt
	}

	badgerOpts := badger.DefaultOptions(opts.Path)
	badgerOpts.Logger = nil
	badgerOpts.ValueLogFileSize = 1024 * 1024 * 100

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: open %s: %w", opts.Path, err)
	}

	return &Fetcher{db: db, salt: salt, logger: logger}, nil
}

// Close flushes and closes the underlying BadgerDB.
func (f *Fetcher) Close() error {
	return f.db.Close()
}

// ReadCount and WriteCount report the number of Badger reads and writes
// performed so far, mirroring the teacher's keyValStore operation counters.
func (f *Fetcher) ReadCount() uint64  { return f.readCounter.Load() }
func (f *Fetcher) WriteCount() uint64 { return f.writeCounter.Load() }

func catalogKey(h catalog.Hash) []byte {
	return append(append([]byte{}, prefixCatalog...), h[:]...)
}

// tagHistoryKey derives the Badger key for a tag-history blob by keyed
// hashing its content hash with the Fetcher's salt, so the key is both
// content-addressed and namespaced per repository.
func tagHistoryKey(salt []byte, h catalog.Hash) ([]byte, error) {
	mac, err := blake2b.New(32, salt)
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: blake2b key: %w", err)
	}
	mac.Write(h[:])
	return append(append([]byte{}, prefixHistBlob...), mac.Sum(nil)...), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: lzma writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("badgerfetcher: lzma compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("badgerfetcher: lzma close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: lzma reader: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("badgerfetcher: lzma decompress: %w", err)
	}
	return buf.Bytes(), nil
}

// PutCatalog writes c under its content hash. A re-write of an existing hash
// overwrites the stored entry; since the store is content addressed, the
// new value carries the same catalog.
func (f *Fetcher) PutCatalog(ctx context.Context, c *catalog.Catalog) error {
	blob, err := compress(wire.EncodeCatalog(c))
	if err != nil {
		return fmt.Errorf("badgerfetcher: put catalog %s: %w", c.Hash, err)
	}

	f.writeCounter.Add(1)
	err = f.db.Update(func(txn *badger.Txn) error {
		return txn.Set(catalogKey(c.Hash), blob)
	})
	if err != nil {
		return fmt.Errorf("badgerfetcher: put catalog %s: %w", c.Hash, err)
	}
	return nil
}

// PutCatalogs writes every catalog in cats in a single write batch, the
// teacher's BatchWriteChunk idiom for bulk loads.
func (f *Fetcher) PutCatalogs(ctx context.Context, cats []*catalog.Catalog) error {
	wb := f.db.NewWriteBatch()
	defer wb.Cancel()

	for _, c := range cats {
		blob, err := compress(wire.EncodeCatalog(c))
		if err != nil {
			return fmt.Errorf("badgerfetcher: put catalogs: %w", err)
		}
		f.writeCounter.Add(1)
		if err := wb.Set(catalogKey(c.Hash), blob); err != nil {
			return fmt.Errorf("badgerfetcher: put catalogs: %w", err)
		}
	}
	return wb.Flush()
}

// PutManifest records head as the repository's current HEAD root hash.
func (f *Fetcher) PutManifest(ctx context.Context, head catalog.Hash) error {
	f.writeCounter.Add(1)
	err := f.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyHead, head[:])
	})
	if err != nil {
		return fmt.Errorf("badgerfetcher: put manifest: %w", err)
	}
	return nil
}

// PutTagHistory writes h and records it as the repository's current tag
// history.
func (f *Fetcher) PutTagHistory(ctx context.Context, h *catalog.TagHistory) error {
	blob, err := compress(wire.EncodeTagHistory(h))
	if err != nil {
		return fmt.Errorf("badgerfetcher: put tag history: %w", err)
	}
	key, err := tagHistoryKey(f.salt, h.Hash)
	if err != nil {
		return fmt.Errorf("badgerfetcher: put tag history: %w", err)
	}

	f.writeCounter.Add(2)
	err = f.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, blob); err != nil {
			return err
		}
		return txn.Set(keyTagHistory, h.Hash[:])
	})
	if err != nil {
		return fmt.Errorf("badgerfetcher: put tag history: %w", err)
	}
	return nil
}

func (f *Fetcher) FetchManifest(ctx context.Context) (catalog.Hash, error) {
	var head catalog.Hash
	f.readCounter.Add(1)
	err := f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHead)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			copy(head[:], v)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return catalog.Hash{}, catalog.ErrManifestUnavailable
	}
	if err != nil {
		return catalog.Hash{}, fmt.Errorf("badgerfetcher: fetch manifest: %w", err)
	}
	return head, nil
}

func (f *Fetcher) FetchTagHistory(ctx context.Context) (*catalog.TagHistory, error) {
	var histHash catalog.Hash
	f.readCounter.Add(1)
	err := f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyTagHistory)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			copy(histHash[:], v)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, catalog.ErrTagHistoryUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: fetch tag history: %w", err)
	}

	key, err := tagHistoryKey(f.salt, histHash)
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: fetch tag history: %w", err)
	}

	var blob []byte
	f.readCounter.Add(1)
	err = f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, catalog.ErrTagHistoryUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: fetch tag history: %w", err)
	}

	raw, err := decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: fetch tag history: %w", err)
	}
	h, err := wire.DecodeTagHistory(raw)
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: fetch tag history: decode: %w", err)
	}
	return h, nil
}

func (f *Fetcher) FetchCatalog(ctx context.Context, hash catalog.Hash, expectedMountpoint string) (*catalog.Catalog, error) {
	var blob []byte
	f.readCounter.Add(1)
	err := f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(catalogKey(hash))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, &catalog.NotFoundError{Hash: hash}
	}
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: fetch catalog %s: %w", hash, err)
	}

	raw, err := decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: fetch catalog %s: %w", hash, err)
	}
	c, err := wire.DecodeCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("badgerfetcher: fetch catalog %s: decode: %w", hash, err)
	}

	if expectedMountpoint != "" && c.Mountpoint != expectedMountpoint {
		return nil, fmt.Errorf("badgerfetcher: fetch catalog %s: mountpoint mismatch: got %q, want %q", hash, c.Mountpoint, expectedMountpoint)
	}
	return c, nil
}

// DiskUsage returns the sizes in bytes of Badger's LSM tree and of its
// value log files, as two separate figures: the same figures cmd/catgraph's stat subcommand reports
// alongside gopsutil's free-space reading for the data directory.
func (f *Fetcher) DiskUsage() (lsm, vlog int64) {
	return f.db.Size()
}
