package bagstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/rid"
	"github.com/leftmike/linkbag/storage/encode"
	"github.com/leftmike/linkbag/storage/keyval"
)

var (
	ErrConflict = errors.New("bagstore: write conflict committing transaction")
)

// Store persists records and the trees of tree-backed link bags in a versioned KV. Each
// commit writes a new version; reads observe the version of a snapshot.
type Store struct {
	kv          keyval.KV
	commitMutex sync.Mutex

	mutex      sync.Mutex
	ver        uint64
	nextColl   uint64
	nextHandle linkbag.OwnerHandle
	positions  map[int32]int64
}

// RecordWrite replaces the value of a record; a nil Value deletes the record. Writing an
// unchanged value still creates a new version and so conflicts with concurrent writers.
type RecordWrite struct {
	ID    rid.RID
	Value []byte
}

type Batch struct {
	Operations []linkbag.Operation
	Records    []RecordWrite
}

type Result struct {
	Snapshot linkbag.Snapshot
	// Pointers holds the pointer of the tree of each operation, in the order of the
	// operations; a DeleteOp has a zero Pointer.
	Pointers []linkbag.Pointer
}

type scanner struct {
	it keyval.Iterator
}

func getUint64(kv keyval.KV, key []byte) (uint64, error) {
	var u64 uint64
	err := kv.GetAt(math.MaxUint64, key,
		func(val []byte, ver uint64) error {
			var ok bool
			u64, ok = encode.DecodeUint64(val)
			if !ok {
				return fmt.Errorf("bagstore: key %v: len(val) != 8: %d", key, len(val))
			}
			return nil
		})
	return u64, err
}

// Open loads the store held in kv, initializing it if kv is empty.
func Open(kv keyval.KV) (*Store, error) {
	ver, err := getUint64(kv, encode.MetaKey(encode.VersionMeta))
	if err != nil && err != io.EOF {
		return nil, err
	}
	nextColl, err := getUint64(kv, encode.MetaKey(encode.NextCollectionMeta))
	if err == io.EOF {
		nextColl = encode.FirstCollection
	} else if err != nil {
		return nil, err
	}

	positions := map[int32]int64{}
	rng := keyval.Prefix(encode.PositionPrefix())
	rng.Live = true
	it, err := kv.Iterate(math.MaxUint64, rng)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for {
		err = it.Item(
			func(key, val []byte, ver uint64) error {
				cluster, ok := encode.IsPositionKey(key)
				if !ok {
					return fmt.Errorf("bagstore: bad position key: %v", key)
				}
				pos, ok := encode.DecodeUint64(val)
				if !ok {
					return fmt.Errorf("bagstore: cluster %d: bad position: %v", cluster, val)
				}
				positions[cluster] = int64(pos)
				return nil
			})
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"version":     ver,
		"collections": nextColl - encode.FirstCollection,
	}).Info("bagstore: opened")
	return &Store{
		kv:        kv,
		ver:       ver,
		nextColl:  nextColl,
		positions: positions,
	}, nil
}

func (st *Store) Close() error {
	return st.kv.Close()
}

// Snapshot returns the latest committed version.
func (st *Store) Snapshot() linkbag.Snapshot {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	return linkbag.Snapshot(st.ver)
}

// NewCollection allocates the pointer of a new tree; it is persisted by the next commit.
func (st *Store) NewCollection() linkbag.Pointer {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	ptr := linkbag.Pointer{Collection: st.nextColl}
	st.nextColl += 1
	return ptr
}

// NewOwnerHandle returns a handle, unique within st, for a record loaded or created by any
// transaction.
func (st *Store) NewOwnerHandle() linkbag.OwnerHandle {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.nextHandle += 1
	return st.nextHandle
}

// NextRID allocates the next storage position in cluster; it is persisted by the next
// commit.
func (st *Store) NextRID(cluster int32) rid.RID {
	if cluster < 0 {
		panic(fmt.Sprintf("bagstore: reserved cluster: %d", cluster))
	}

	st.mutex.Lock()
	defer st.mutex.Unlock()

	pos := st.positions[cluster]
	st.positions[cluster] = pos + 1
	return rid.RID{Cluster: cluster, Position: pos}
}

func (st *Store) Get(ctx context.Context, ptr linkbag.Pointer, snap linkbag.Snapshot,
	key rid.RID) (linkbag.Change, bool, error) {

	var c linkbag.Change
	var found bool
	err := st.kv.GetAt(uint64(snap), encode.EntryKey(ptr.Collection, key),
		func(val []byte, ver uint64) error {
			if len(val) == 0 {
				return nil
			}
			var err error
			c, err = encode.DecodeChange(key, val)
			found = err == nil
			return err
		})
	if err == io.EOF {
		return linkbag.Change{}, false, nil
	} else if err != nil {
		return linkbag.Change{}, false, err
	}
	return c, found, nil
}

func (st *Store) Scan(ctx context.Context, ptr linkbag.Pointer, snap linkbag.Snapshot,
	minKey, maxKey rid.RID) (linkbag.Scanner, error) {

	it, err := st.kv.Iterate(uint64(snap),
		keyval.Range{
			Start: encode.EntryKey(ptr.Collection, minKey),
			Limit: keyval.Through(encode.EntryKey(ptr.Collection, maxKey)),
			Live:  true,
		})
	if err != nil {
		return nil, err
	}
	return &scanner{
		it: it,
	}, nil
}

func (sc *scanner) Item(fn func(e linkbag.Entry) error) error {
	var e linkbag.Entry
	err := sc.it.Item(
		func(key, val []byte, ver uint64) error {
			_, r, err := encode.DecodeEntryKey(key)
			if err != nil {
				return err
			}
			c, err := encode.DecodeChange(r, val)
			if err != nil {
				return err
			}
			e = linkbag.Entry{RID: r, Change: c}
			return nil
		})
	if err != nil {
		return err
	}
	return fn(e)
}

func (sc *scanner) Close() {
	sc.it.Close()
}

// GetRecord returns the value of the record id as of snap.
func (st *Store) GetRecord(ctx context.Context, snap linkbag.Snapshot, id rid.RID) ([]byte,
	bool, error) {

	var val []byte
	err := st.kv.GetAt(uint64(snap), encode.RecordKey(id),
		func(v []byte, ver uint64) error {
			val = append(make([]byte, 0, len(v)), v...)
			return nil
		})
	if err == io.EOF || (err == nil && len(val) == 0) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

type committer struct {
	upd  keyval.Updater
	snap uint64
}

// set writes key after checking that no version newer than the snapshot exists.
func (cm committer) set(key, val []byte) error {
	var exists bool
	err := cm.upd.Get(key,
		func(old []byte, ver uint64) error {
			if ver > cm.snap {
				return ErrConflict
			}
			exists = len(old) > 0
			return nil
		})
	if err != nil && err != io.EOF {
		return err
	}
	if len(val) == 0 && !exists {
		return nil
	}
	return cm.upd.Set(key, val)
}

func (cm committer) update(op linkbag.Operation) error {
	max := op.MaxCounter
	if max <= 0 {
		max = linkbag.DefaultMaxCounter
	}

	for _, e := range op.Changes {
		var val []byte
		if e.Change.Counter > 0 {
			c := e.Change
			if c.Counter > max {
				c.Counter = max
			}
			val = encode.EncodeChange(e.RID, c)
		}
		err := cm.set(encode.EntryKey(op.Pointer.Collection, e.RID), val)
		if err != nil {
			return err
		}
	}
	return nil
}

// collectionKeys returns the live keys of the collection at ptr; it fails with ErrConflict
// if any key was written since snap.
func (st *Store) collectionKeys(ptr linkbag.Pointer, snap uint64) ([][]byte, error) {
	it, err := st.kv.Iterate(math.MaxUint64,
		keyval.Prefix(encode.CollectionPrefix(ptr.Collection)))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var keys [][]byte
	for {
		err = it.Item(
			func(key, val []byte, ver uint64) error {
				if ver > snap {
					return ErrConflict
				}
				if len(val) > 0 {
					keys = append(keys, append(make([]byte, 0, len(key)), key...))
				}
				return nil
			})
		if err == io.EOF {
			return keys, nil
		} else if err != nil {
			return nil, err
		}
	}
}

func (cm committer) delete(keys [][]byte) error {
	for _, key := range keys {
		err := cm.upd.Set(key, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

func (st *Store) setMeta(upd keyval.Updater, ver uint64) error {
	st.mutex.Lock()
	nextColl := st.nextColl
	positions := make(map[int32]int64, len(st.positions))
	for cluster, pos := range st.positions {
		positions[cluster] = pos
	}
	st.mutex.Unlock()

	err := upd.Set(encode.MetaKey(encode.VersionMeta), encode.EncodeUint64(nil, ver))
	if err != nil {
		return err
	}
	err = upd.Set(encode.MetaKey(encode.NextCollectionMeta), encode.EncodeUint64(nil, nextColl))
	if err != nil {
		return err
	}
	for cluster, pos := range positions {
		err = upd.Set(encode.PositionKey(cluster), encode.EncodeUint64(nil, uint64(pos)))
		if err != nil {
			return err
		}
	}
	return nil
}

// Commit applies batch as a new version. It fails with ErrConflict if any key it writes has
// been written by another commit since snap.
func (st *Store) Commit(ctx context.Context, snap linkbag.Snapshot, batch Batch) (Result,
	error) {

	st.commitMutex.Lock()
	defer st.commitMutex.Unlock()

	deletes := map[int][][]byte{}
	for idx, op := range batch.Operations {
		if op.Kind == linkbag.DeleteOp {
			keys, err := st.collectionKeys(op.Pointer, uint64(snap))
			if err != nil {
				if err == ErrConflict {
					log.WithField("snapshot", snap).Info("bagstore: write conflict")
				}
				return Result{}, err
			}
			deletes[idx] = keys
		}
	}

	ver := uint64(st.Snapshot()) + 1
	upd, err := st.kv.Update(ver)
	if err != nil {
		return Result{}, err
	}
	cm := committer{
		upd:  upd,
		snap: uint64(snap),
	}

	var res Result
	for idx, op := range batch.Operations {
		switch op.Kind {
		case linkbag.UpdateOp:
			if op.Pointer == (linkbag.Pointer{}) {
				op.Pointer = st.NewCollection()
			}
			err = cm.update(op)
			res.Pointers = append(res.Pointers, op.Pointer)
		case linkbag.DeleteOp:
			err = cm.delete(deletes[idx])
			res.Pointers = append(res.Pointers, linkbag.Pointer{})
		default:
			panic(fmt.Sprintf("bagstore: unexpected operation: %s", op.Kind))
		}
		if err != nil {
			break
		}
	}

	if err == nil {
		for _, rw := range batch.Records {
			err = cm.set(encode.RecordKey(rw.ID), rw.Value)
			if err != nil {
				break
			}
		}
	}
	if err == nil {
		err = st.setMeta(upd, ver)
	}
	if err != nil {
		upd.Rollback()
		if err == ErrConflict {
			log.WithField("snapshot", snap).Info("bagstore: write conflict")
		}
		return Result{}, err
	}

	err = upd.Commit()
	if err != nil {
		return Result{}, err
	}

	st.mutex.Lock()
	st.ver = ver
	st.mutex.Unlock()

	log.WithFields(log.Fields{
		"version":     ver,
		"collections": len(batch.Operations),
		"records":     len(batch.Records),
	}).Debug("bagstore: commit")

	res.Snapshot = linkbag.Snapshot(ver)
	return res, nil
}
