package keyval

import (
	"bytes"
	"io"
	"math"
	"os"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"
)

type pebbleKV struct {
	db *pebble.DB
}

type pebbleIterator struct {
	ver  uint64
	rng  Range
	snap *pebble.Snapshot
	cr   pebbleCursor
}

type pebbleCursor struct {
	it *pebble.Iterator
}

type pebbleUpdater struct {
	db    *pebble.DB
	batch *pebble.Batch
	ver   uint64
}

// MakePebbleKV stores every version of a key under the key followed by its inverted
// version, the same layout as bbolt.
func MakePebbleKV(dataDir string, logger *log.Logger) (KV, error) {
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return nil, err
	}

	db, err := pebble.Open(dataDir, &pebble.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return pebbleKV{
		db: db,
	}, nil
}

func (pkv pebbleKV) Iterate(ver uint64, rng Range) (Iterator, error) {
	snap := pkv.db.NewSnapshot()
	it := snap.NewIter(nil)
	it.SeekGE(rng.Start)

	return &pebbleIterator{
		ver:  ver,
		rng:  rng,
		snap: snap,
		cr:   pebbleCursor{it},
	}, nil
}

func (pc pebbleCursor) current() ([]byte, []byte) {
	if !pc.it.Valid() {
		return nil, nil
	}
	return pc.it.Key(), pc.it.Value()
}

func (pc pebbleCursor) next() {
	pc.it.Next()
}

func (pit *pebbleIterator) Item(fn func(key, val []byte, ver uint64) error) error {
	return suffixItem(pit.cr, pit.ver, pit.rng, fn)
}

func (pit *pebbleIterator) Close() {
	pit.cr.it.Close()
	pit.snap.Close()
}

func (pkv pebbleKV) GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	return getAt(pkv, ver, key, fn)
}

func (pkv pebbleKV) Update(ver uint64) (Updater, error) {
	return pebbleUpdater{
		db:    pkv.db,
		batch: pkv.db.NewBatch(),
		ver:   ver,
	}, nil
}

func (pkv pebbleKV) Close() error {
	return pkv.db.Close()
}

// Get reads committed versions only; a key set by this updater is not visible yet.
func (pu pebbleUpdater) Get(key []byte, fn func(val []byte, ver uint64) error) error {
	it := pu.db.NewIter(nil)
	defer it.Close()

	if !it.SeekGE(encodeKey(key, math.MaxUint64)) {
		return io.EOF
	}
	found, ver := decodeKey(it.Key())
	if !bytes.Equal(found, key) {
		return io.EOF
	}
	return fn(it.Value(), ver)
}

func (pu pebbleUpdater) Set(key, val []byte) error {
	return pu.batch.Set(encodeKey(key, pu.ver), val, nil)
}

func (pu pebbleUpdater) Commit() error {
	return pu.batch.Commit(pebble.Sync)
}

func (pu pebbleUpdater) Rollback() {
	pu.batch.Close()
}
