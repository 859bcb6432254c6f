// Package wire encodes and decodes catalog.Catalog and catalog.TagHistory
// values as protobuf wire-format messages, using the low-level field
// primitives directly rather than a generated .pb.go, so that the message
// shapes live next to the Go types they serialize. Field numbers are part of
// the on-disk format and must not be renumbered once written.
package wire

import (
	"fmt"
	"time"

	"github.com/i5heu/catgraph/pkg/catalog"
	"google.golang.org/protobuf/encoding/protowire"
)

// Catalog field numbers.
const (
	fieldCatalogHash             = 1
	fieldCatalogRevision         = 2
	fieldCatalogMountpoint       = 3
	fieldCatalogTimestamp        = 4
	fieldCatalogPreviousRootHash = 5
	fieldCatalogNested           = 6
)

// Ref field numbers, nested within a Catalog's fieldCatalogNested entries.
const (
	fieldRefHash       = 1
	fieldRefMountpoint = 2
)

// TagHistory field numbers.
const (
	fieldTagHistoryHash      = 1
	fieldTagHistorySnapshots = 2
)

// Snapshot field numbers, nested within a TagHistory's fieldTagHistorySnapshots entries.
const (
	fieldSnapshotRootHash  = 1
	fieldSnapshotRevision  = 2
	fieldSnapshotTimestamp = 3
	fieldSnapshotLabel     = 4
)

// EncodeCatalog serializes c to its wire form. c.Hash is included for
// round-trip convenience but callers should treat the hash as derived, not
// as data trusted from the wire.
func EncodeCatalog(c *catalog.Catalog) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldCatalogHash, protowire.BytesType)
	b = protowire.AppendBytes(b, c.Hash[:])
	b = protowire.AppendTag(b, fieldCatalogRevision, protowire.VarintType)
	b = protowire.AppendVarint(b, c.Revision)
	b = protowire.AppendTag(b, fieldCatalogMountpoint, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(c.Mountpoint))
	b = protowire.AppendTag(b, fieldCatalogTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Timestamp.UnixNano()))
	if c.PreviousRootHash != nil {
		b = protowire.AppendTag(b, fieldCatalogPreviousRootHash, protowire.BytesType)
		b = protowire.AppendBytes(b, c.PreviousRootHash[:])
	}
	for _, ref := range c.Nested {
		b = protowire.AppendTag(b, fieldCatalogNested, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeRef(ref))
	}
	return b
}

func encodeRef(ref catalog.Ref) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRefHash, protowire.BytesType)
	b = protowire.AppendBytes(b, ref.Hash[:])
	b = protowire.AppendTag(b, fieldRefMountpoint, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(ref.Mountpoint))
	return b
}

// DecodeCatalog parses the wire form produced by EncodeCatalog.
func DecodeCatalog(data []byte) (*catalog.Catalog, error) {
	c := &catalog.Catalog{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wire: decode catalog: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldCatalogHash:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, fmt.Errorf("wire: decode catalog hash: %w", err)
			}
			copy(c.Hash[:], v)
			data = data[n:]
		case fieldCatalogRevision:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, fmt.Errorf("wire: decode catalog revision: %w", err)
			}
			c.Revision = v
			data = data[n:]
		case fieldCatalogMountpoint:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, fmt.Errorf("wire: decode catalog mountpoint: %w", err)
			}
			c.Mountpoint = string(v)
			data = data[n:]
		case fieldCatalogTimestamp:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, fmt.Errorf("wire: decode catalog timestamp: %w", err)
			}
			c.Timestamp = time.Unix(0, int64(v)).UTC()
			data = data[n:]
		case fieldCatalogPreviousRootHash:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, fmt.Errorf("wire: decode catalog previous root hash: %w", err)
			}
			var h catalog.Hash
			copy(h[:], v)
			c.PreviousRootHash = &h
			data = data[n:]
		case fieldCatalogNested:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, fmt.Errorf("wire: decode catalog nested ref: %w", err)
			}
			ref, err := decodeRef(v)
			if err != nil {
				return nil, fmt.Errorf("wire: decode catalog nested ref: %w", err)
			}
			c.Nested = append(c.Nested, ref)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("wire: decode catalog: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return c, nil
}

func decodeRef(data []byte) (catalog.Ref, error) {
	var ref catalog.Ref
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return ref, fmt.Errorf("bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldRefHash:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return ref, err
			}
			copy(ref.Hash[:], v)
			data = data[n:]
		case fieldRefMountpoint:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return ref, err
			}
			ref.Mountpoint = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return ref, fmt.Errorf("skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return ref, nil
}

// EncodeTagHistory serializes h to its wire form.
func EncodeTagHistory(h *catalog.TagHistory) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldTagHistoryHash, protowire.BytesType)
	b = protowire.AppendBytes(b, h.Hash[:])
	for _, snap := range h.Snapshots {
		b = protowire.AppendTag(b, fieldTagHistorySnapshots, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSnapshot(snap))
	}
	return b
}

func encodeSnapshot(s catalog.Snapshot) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSnapshotRootHash, protowire.BytesType)
	b = protowire.AppendBytes(b, s.RootHash[:])
	b = protowire.AppendTag(b, fieldSnapshotRevision, protowire.VarintType)
	b = protowire.AppendVarint(b, s.Revision)
	b = protowire.AppendTag(b, fieldSnapshotTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Timestamp.UnixNano()))
	b = protowire.AppendTag(b, fieldSnapshotLabel, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(s.Label))
	return b
}

// DecodeTagHistory parses the wire form produced by EncodeTagHistory.
func DecodeTagHistory(data []byte) (*catalog.TagHistory, error) {
	h := &catalog.TagHistory{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wire: decode tag history: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldTagHistoryHash:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, fmt.Errorf("wire: decode tag history hash: %w", err)
			}
			copy(h.Hash[:], v)
			data = data[n:]
		case fieldTagHistorySnapshots:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, fmt.Errorf("wire: decode tag history snapshot: %w", err)
			}
			snap, err := decodeSnapshot(v)
			if err != nil {
				return nil, fmt.Errorf("wire: decode tag history snapshot: %w", err)
			}
			h.Snapshots = append(h.Snapshots, snap)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("wire: decode tag history: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return h, nil
}

func decodeSnapshot(data []byte) (catalog.Snapshot, error) {
	var s catalog.Snapshot
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return s, fmt.Errorf("bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldSnapshotRootHash:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return s, err
			}
			copy(s.RootHash[:], v)
			data = data[n:]
		case fieldSnapshotRevision:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return s, err
			}
			s.Revision = v
			data = data[n:]
		case fieldSnapshotTimestamp:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return s, err
			}
			s.Timestamp = time.Unix(0, int64(v)).UTC()
			data = data[n:]
		case fieldSnapshotLabel:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return s, err
			}
			s.Label = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return s, fmt.Errorf("skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return s, nil
}

func consumeBytes(data []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("want bytes wire type, got %d", typ)
	}
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeVarint(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("want varint wire type, got %d", typ)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}
