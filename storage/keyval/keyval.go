package keyval

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// Updater writes a new version of the store. Get returns the latest version of a key,
// including versions newer than the one being written; Set writes key at the updater version.
type Updater interface {
	Get(key []byte, fn func(val []byte, ver uint64) error) error
	Set(key, val []byte) error
	Commit() error
	Rollback()
}

// Iterator returns, in ascending key order, the latest version of each key which is no newer
// than the iterator version. Item returns io.EOF when there are no more keys.
type Iterator interface {
	Item(fn func(key, val []byte, ver uint64) error) error
	Close()
}

// Range limits an iteration to the keys at or after Start and before Limit; a nil Limit is
// unbounded. A Live range skips keys whose latest version is empty, a deleted key.
type Range struct {
	Start []byte
	Limit []byte
	Live  bool
}

// Prefix returns the range of keys starting with prefix.
func Prefix(prefix []byte) Range {
	limit := append(make([]byte, 0, len(prefix)), prefix...)
	for i := len(limit) - 1; i >= 0; i-- {
		if limit[i] != 0xFF {
			limit[i] += 1
			return Range{Start: prefix, Limit: limit[:i+1]}
		}
	}
	return Range{Start: prefix}
}

// Through returns the smallest key after key, a Limit which includes key.
func Through(key []byte) []byte {
	return append(append(make([]byte, 0, len(key)+1), key...), 0)
}

func (rng Range) past(key []byte) bool {
	return rng.Limit != nil && bytes.Compare(key, rng.Limit) >= 0
}

// KV is a versioned key value store. Versions are written in ascending order, one updater at a
// time.
type KV interface {
	Iterate(ver uint64, rng Range) (Iterator, error)
	GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error
	Update(ver uint64) (Updater, error)
	Close() error
}

// Open returns the KV named kind; dataDir is ignored by the btree store.
func Open(kind, dataDir string, logger *log.Logger) (KV, error) {
	switch kind {
	case "btree":
		return MakeBTreeKV(), nil
	case "badger":
		return MakeBadgerKV(dataDir, logger)
	case "bbolt":
		return MakeBBoltKV(dataDir)
	case "pebble":
		return MakePebbleKV(dataDir, logger)
	}
	return nil, fmt.Errorf("keyval: store must be btree, badger, bbolt, or pebble: %s", kind)
}

// encodeKey appends the inverted version so that newer versions of a key sort first.
func encodeKey(key []byte, ver uint64) []byte {
	buf := append(make([]byte, 0, len(key)+8), key...)
	ver = ^ver
	return append(buf, byte(ver>>56), byte(ver>>48), byte(ver>>40), byte(ver>>32),
		byte(ver>>24), byte(ver>>16), byte(ver>>8), byte(ver))
}

func decodeKey(buf []byte) ([]byte, uint64) {
	if len(buf) < 8 {
		panic(fmt.Sprintf("keyval: decode key too short: %v", buf))
	}

	return buf[:len(buf)-8], ^binary.BigEndian.Uint64(buf[len(buf)-8:])
}

func getAt(kv KV, ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	it, err := kv.Iterate(ver, Range{Start: key, Limit: Through(key)})
	if err != nil {
		return err
	}
	defer it.Close()

	return it.Item(
		func(_, val []byte, ver uint64) error {
			return fn(val, ver)
		})
}

// suffixCursor walks the raw keys of a store which uses encodeKey; current returns a nil key
// at the end.
type suffixCursor interface {
	current() (raw, val []byte)
	next()
}

// suffixItem calls fn with the latest version, no newer than ver, of the next key in rng, and
// leaves cr past the older versions of that key.
func suffixItem(cr suffixCursor, ver uint64, rng Range,
	fn func(key, val []byte, ver uint64) error) error {

	for {
		raw, val := cr.current()
		if raw == nil {
			return io.EOF
		}
		key, kver := decodeKey(raw)
		if rng.past(key) {
			return io.EOF
		}
		if kver > ver || bytes.Compare(key, rng.Start) < 0 {
			cr.next()
			continue
		}

		key = append(make([]byte, 0, len(key)), key...)
		val = append(make([]byte, 0, len(val)), val...)
		for {
			cr.next()
			raw, _ = cr.current()
			if raw == nil {
				break
			}
			k, _ := decodeKey(raw)
			if !bytes.Equal(k, key) {
				break
			}
		}

		if rng.Live && len(val) == 0 {
			continue
		}
		return fn(key, val, kver)
	}
}
