package keyval

import (
	"bytes"
	"io"
	"math"
	"sync"

	"github.com/google/btree"
)

type btreeKV struct {
	mutex sync.Mutex
	tree  *btree.BTree
}

// btreeItem is one version of a key; the tree orders items by key, then newest version
// first.
type btreeItem struct {
	key []byte
	ver uint64
	val []byte
}

type btreeIterator struct {
	ver   uint64
	rng   Range
	tree  *btree.BTree
	key   []byte
	first bool
	done  bool
}

type btreeUpdater struct {
	bkv  *btreeKV
	ver  uint64
	sets []btreeItem
}

func (bi btreeItem) Less(item btree.Item) bool {
	bi2 := item.(btreeItem)
	cmp := bytes.Compare(bi.key, bi2.key)
	if cmp != 0 {
		return cmp < 0
	}
	return bi.ver > bi2.ver
}

// MakeBTreeKV returns a KV held in memory.
func MakeBTreeKV() KV {
	return &btreeKV{
		tree: btree.New(16),
	}
}

func (bkv *btreeKV) snapshot() *btree.BTree {
	bkv.mutex.Lock()
	defer bkv.mutex.Unlock()

	return bkv.tree.Clone()
}

func (bkv *btreeKV) Iterate(ver uint64, rng Range) (Iterator, error) {
	return &btreeIterator{
		ver:   ver,
		rng:   rng,
		tree:  bkv.snapshot(),
		key:   rng.Start,
		first: true,
	}, nil
}

func (bit *btreeIterator) Item(fn func(key, val []byte, ver uint64) error) error {
	if bit.done {
		return io.EOF
	}

	for {
		var found *btreeItem
		bit.tree.AscendGreaterOrEqual(btreeItem{key: bit.key, ver: math.MaxUint64},
			func(item btree.Item) bool {
				bi := item.(btreeItem)
				if !bit.first && bytes.Equal(bi.key, bit.key) {
					return true
				}
				if bi.ver > bit.ver {
					return true
				}
				found = &bi
				return false
			})
		if found == nil || bit.rng.past(found.key) {
			bit.done = true
			return io.EOF
		}

		bit.key = found.key
		bit.first = false
		if bit.rng.Live && len(found.val) == 0 {
			continue
		}
		return fn(found.key, found.val, found.ver)
	}
}

func (bit *btreeIterator) Close() {
	bit.tree = nil
	bit.done = true
}

func (bkv *btreeKV) GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	return getAt(bkv, ver, key, fn)
}

func (bkv *btreeKV) Update(ver uint64) (Updater, error) {
	return &btreeUpdater{
		bkv: bkv,
		ver: ver,
	}, nil
}

func (bkv *btreeKV) Close() error {
	return nil
}

func (bu *btreeUpdater) Get(key []byte, fn func(val []byte, ver uint64) error) error {
	return bu.bkv.GetAt(math.MaxUint64, key, fn)
}

func (bu *btreeUpdater) Set(key, val []byte) error {
	bu.sets = append(bu.sets, btreeItem{
		key: append(make([]byte, 0, len(key)), key...),
		ver: bu.ver,
		val: append(make([]byte, 0, len(val)), val...),
	})
	return nil
}

func (bu *btreeUpdater) Commit() error {
	bu.bkv.mutex.Lock()
	defer bu.bkv.mutex.Unlock()

	for _, bi := range bu.sets {
		bu.bkv.tree.ReplaceOrInsert(bi)
	}
	bu.sets = nil
	return nil
}

func (bu *btreeUpdater) Rollback() {
	bu.sets = nil
}
