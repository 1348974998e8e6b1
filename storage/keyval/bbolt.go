package keyval

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	linkbagBucket = []byte{'l', 'i', 'n', 'k', 'b', 'a', 'g'}
)

type bboltKV struct {
	db *bbolt.DB
}

type bboltIterator struct {
	ver uint64
	rng Range
	tx  *bbolt.Tx
	cr  *bboltCursor
}

type bboltCursor struct {
	cr  *bbolt.Cursor
	key []byte
	val []byte
}

type bboltUpdater struct {
	tx  *bbolt.Tx
	bkt *bbolt.Bucket
	ver uint64
}

func MakeBBoltKV(dataDir string) (KV, error) {
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return nil, err
	}

	db, err := bbolt.Open(filepath.Join(dataDir, "linkbag.bbolt"), 0644, nil)
	if err != nil {
		return nil, err
	}
	// Dangerous, but about 100x faster.
	db.NoFreelistSync = true
	db.NoSync = true

	err = db.Update(
		func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(linkbagBucket)
			return err
		})
	if err != nil {
		db.Close()
		return nil, err
	}

	return bboltKV{
		db: db,
	}, nil
}

func (bkv bboltKV) Iterate(ver uint64, rng Range) (Iterator, error) {
	tx, err := bkv.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(linkbagBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, errors.New("bbolt: missing linkbag bucket")
	}
	cr := bkt.Cursor()
	key, val := cr.Seek(rng.Start)

	return &bboltIterator{
		ver: ver,
		rng: rng,
		tx:  tx,
		cr: &bboltCursor{
			cr:  cr,
			key: key,
			val: val,
		},
	}, nil
}

func (bc *bboltCursor) current() ([]byte, []byte) {
	return bc.key, bc.val
}

func (bc *bboltCursor) next() {
	bc.key, bc.val = bc.cr.Next()
}

func (bit *bboltIterator) Item(fn func(key, val []byte, ver uint64) error) error {
	return suffixItem(bit.cr, bit.ver, bit.rng, fn)
}

func (bit *bboltIterator) Close() {
	bit.tx.Rollback()
}

func (bkv bboltKV) GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	return getAt(bkv, ver, key, fn)
}

func (bkv bboltKV) Update(ver uint64) (Updater, error) {
	tx, err := bkv.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(linkbagBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, errors.New("bbolt: missing linkbag bucket")
	}
	return bboltUpdater{
		tx:  tx,
		bkt: bkt,
		ver: ver,
	}, nil
}

func (bkv bboltKV) Close() error {
	return bkv.db.Close()
}

func (bu bboltUpdater) Get(key []byte, fn func(val []byte, ver uint64) error) error {
	cr := bu.bkt.Cursor()
	kbuf, val := cr.Seek(encodeKey(key, math.MaxUint64))
	if kbuf == nil {
		return io.EOF
	}
	found, ver := decodeKey(kbuf)
	if !bytes.Equal(found, key) {
		return io.EOF
	}
	return fn(val, ver)
}

func (bu bboltUpdater) Set(key, val []byte) error {
	return bu.bkt.Put(encodeKey(key, bu.ver), val)
}

func (bu bboltUpdater) Commit() error {
	return bu.tx.Commit()
}

func (bu bboltUpdater) Rollback() {
	bu.tx.Rollback()
}
