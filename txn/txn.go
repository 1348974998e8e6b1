// Package txn runs transactions over records and their link bags.
package txn

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/record"
	"github.com/leftmike/linkbag/rid"
	"github.com/leftmike/linkbag/storage/bagstore"
	"github.com/leftmike/linkbag/storage/encode"
)

var (
	ErrTransactionComplete = errors.New("txn: transaction already completed")
	ErrRecordNotFound      = errors.New("txn: record not found")
)

type Options struct {
	MaxCounter int
	Container  linkbag.ContainerKind

	// An embedded bag with more members than EmbeddedToTree is converted to a tree-backed bag
	// at commit, and a tree-backed bag with fewer members than TreeToEmbedded is converted to
	// an embedded bag. A negative threshold disables the conversion.
	EmbeddedToTree int
	TreeToEmbedded int
}

func DefaultOptions() Options {
	return Options{
		MaxCounter:     linkbag.DefaultMaxCounter,
		Container:      linkbag.ArrayContainer,
		EmbeddedToTree: 40,
		TreeToEmbedded: -1,
	}
}

type Transaction struct {
	st   *bagstore.Store
	opts Options
	snap linkbag.Snapshot
	ids  *identities
	done bool

	records map[linkbag.OwnerHandle]*record.Record
	order   []linkbag.OwnerHandle
	byID    map[rid.RID]*record.Record
	created map[linkbag.OwnerHandle]bool
	dirty   map[linkbag.OwnerHandle]bool
	touched map[linkbag.OwnerHandle]bool
}

type opContext struct {
	ops []linkbag.Operation
}

type swap struct {
	rec  *record.Record
	name string
	old  *linkbag.Bag
	new  *linkbag.Bag
}

func (oc *opContext) Push(op linkbag.Operation) {
	oc.ops = append(oc.ops, op)
}

// Begin starts a transaction which reads st at its latest committed version.
func Begin(st *bagstore.Store, opts Options) *Transaction {
	return &Transaction{
		st:      st,
		opts:    opts,
		snap:    st.Snapshot(),
		ids:     newIdentities(),
		records: map[linkbag.OwnerHandle]*record.Record{},
		byID:    map[rid.RID]*record.Record{},
		created: map[linkbag.OwnerHandle]bool{},
		dirty:   map[linkbag.OwnerHandle]bool{},
		touched: map[linkbag.OwnerHandle]bool{},
	}
}

func (tx *Transaction) Snapshot() linkbag.Snapshot {
	return tx.snap
}

func (tx *Transaction) Dirty(h linkbag.OwnerHandle) {
	tx.dirty[h] = true
}

func (tx *Transaction) DirtyNoChange(h linkbag.OwnerHandle) {
	tx.touched[h] = true
}

func (tx *Transaction) bagOptions() linkbag.Options {
	return linkbag.Options{
		MaxCounter: tx.opts.MaxCounter,
		Container:  tx.opts.Container,
		Identities: tx.ids,
		Tracker:    tx,
		Reader:     tx.st,
		Snapshot:   tx.snap,
	}
}

func (tx *Transaction) addRecord(r *record.Record) {
	tx.records[r.Handle()] = r
	tx.order = append(tx.order, r.Handle())
	if id, ok := r.ID().(rid.RID); ok {
		tx.byID[id] = r
	}
}

// NewRecord returns a new record in cluster; it has a temporary identity until the
// transaction commits.
func (tx *Transaction) NewRecord(cluster int32) (*record.Record, error) {
	if tx.done {
		return nil, ErrTransactionComplete
	}

	r := record.New(tx.ids.newTempRID(cluster), tx.st.NewOwnerHandle())
	tx.addRecord(r)
	tx.created[r.Handle()] = true
	return r, nil
}

// Record returns a record already created or loaded by the transaction; id may be a
// temporary identity.
func (tx *Transaction) Record(id rid.Ref) (*record.Record, bool) {
	id = tx.ids.Resolve(id)
	if r, ok := id.(rid.RID); ok {
		rec, ok := tx.byID[r]
		return rec, ok
	}
	for _, h := range tx.order {
		if rec := tx.records[h]; rec.ID() == id {
			return rec, true
		}
	}
	return nil, false
}

// Load returns the record id as of the snapshot of the transaction.
func (tx *Transaction) Load(ctx context.Context, id rid.Ref) (*record.Record, error) {
	if tx.done {
		return nil, ErrTransactionComplete
	}
	if rec, ok := tx.Record(id); ok {
		return rec, nil
	}
	r, ok := id.(rid.RID)
	if !ok {
		return nil, fmt.Errorf("txn: record %s: %w", id, ErrRecordNotFound)
	}

	val, ok, err := tx.st.GetRecord(ctx, tx.snap, r)
	if err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("txn: record %s: %w", id, ErrRecordNotFound)
	}

	rec, err := record.Decode(r, tx.st.NewOwnerHandle(), val,
		func(bv encode.BagValue) (*linkbag.Bag, error) {
			if bv.Tree {
				return linkbag.NewTree(linkbag.Pointer{Collection: bv.Pointer}, bv.Size,
					tx.bagOptions()), nil
			}
			b := linkbag.NewEmbedded(tx.bagOptions())
			b.Load(bv.Entries)
			return b, nil
		})
	if err != nil {
		return nil, err
	}
	tx.addRecord(rec)
	return rec, nil
}

func (tx *Transaction) NewEmbeddedBag() *linkbag.Bag {
	return linkbag.NewEmbedded(tx.bagOptions())
}

func (tx *Transaction) NewTreeBag() *linkbag.Bag {
	return linkbag.NewTree(linkbag.Pointer{}, 0, tx.bagOptions())
}

// SetBag makes b the named field of rec; rec is written when the transaction commits.
func (tx *Transaction) SetBag(rec *record.Record, name string, b *linkbag.Bag) error {
	err := rec.SetBag(name, b)
	if err != nil {
		return err
	}
	tx.dirty[rec.Handle()] = true
	return nil
}

// NewTempRID returns a temporary identity which is bound to a storage position in cluster
// when the transaction commits.
func (tx *Transaction) NewTempRID(cluster int32) rid.TempRID {
	return tx.ids.newTempRID(cluster)
}

// DeleteRecord deletes the record along with the trees of its tree-backed bags.
func (tx *Transaction) DeleteRecord(rec *record.Record) {
	rec.Delete()
	tx.dirty[rec.Handle()] = true
}

func (tx *Transaction) rebind() {
	tx.ids.assign(tx.st.NextRID)
	for _, h := range tx.order {
		rec := tx.records[h]
		if t, ok := rec.ID().(rid.TempRID); ok {
			if r, ok := tx.ids.Resolve(t).(rid.RID); ok {
				rec.Rebind(r)
				tx.byID[r] = rec
			}
		}
	}
}

func (tx *Transaction) convert(ctx context.Context, rec *record.Record, name string,
	b *linkbag.Bag, oc *opContext) (*linkbag.Bag, error) {

	switch b.Mode() {
	case linkbag.Embedded:
		if tx.opts.EmbeddedToTree < 0 || b.Size() <= tx.opts.EmbeddedToTree {
			return nil, nil
		}
		log.WithFields(log.Fields{
			"record": rec,
			"field":  name,
			"size":   b.Size(),
		}).Debug("txn: converting embedded bag to tree")
		return b.Convert(ctx, linkbag.TreeBacked, tx.bagOptions())
	case linkbag.TreeBacked:
		if tx.opts.TreeToEmbedded < 0 || b.Size() >= tx.opts.TreeToEmbedded {
			return nil, nil
		}
		log.WithFields(log.Fields{
			"record": rec,
			"field":  name,
			"size":   b.Size(),
		}).Debug("txn: converting tree bag to embedded")
		nb, err := b.Convert(ctx, linkbag.Embedded, tx.bagOptions())
		if err != nil {
			return nil, err
		}
		b.FlushDelete(oc)
		return nb, nil
	}
	panic(fmt.Sprintf("txn: unexpected bag mode: %d", b.Mode()))
}

func (tx *Transaction) prepare(ctx context.Context, oc *opContext) ([]bagstore.RecordWrite,
	[]swap, error) {

	var writes []bagstore.RecordWrite
	var swaps []swap
	for _, h := range tx.order {
		rec := tx.records[h]
		id, ok := rec.ID().(rid.RID)
		if !ok {
			return nil, swaps, fmt.Errorf("txn: record %s: %w", rec, linkbag.ErrTemporaryKey)
		}

		if rec.IsDeleted() {
			for _, name := range rec.Fields() {
				b, _ := rec.Bag(name)
				b.FlushDelete(oc)
			}
			if !tx.created[h] {
				writes = append(writes, bagstore.RecordWrite{ID: id})
			}
			continue
		}

		write := tx.created[h] || tx.dirty[h] || tx.touched[h]
		for _, name := range rec.Fields() {
			b, _ := rec.Bag(name)
			nb, err := tx.convert(ctx, rec, name, b, oc)
			if err != nil {
				return nil, swaps, err
			}
			if nb != nil {
				rec.ReplaceBag(name, nb)
				swaps = append(swaps, swap{rec: rec, name: name, old: b, new: nb})
				b = nb
				write = true
			}

			if b.Mode() == linkbag.TreeBacked && b.IsDirty() {
				if b.Pointer() == (linkbag.Pointer{}) {
					b.AssignPointer(tx.st.NewCollection())
				}
				err = b.Flush(oc)
				if err != nil {
					return nil, swaps, fmt.Errorf("txn: record %s: field %s: %w", rec, name,
						err)
				}
			}
		}

		if write {
			val, err := rec.Encode()
			if err != nil {
				return nil, swaps, err
			}
			writes = append(writes, bagstore.RecordWrite{ID: id, Value: val})
		}
	}
	return writes, swaps, nil
}

func (tx *Transaction) discard() {
	for _, h := range tx.order {
		rec := tx.records[h]
		for _, name := range rec.Fields() {
			b, _ := rec.Bag(name)
			b.Discard()
		}
	}
}

// Commit persists every record and bag changed by the transaction. Identities are rebound,
// bags crossing a threshold are converted, and the changes are written as one version of the
// store. The transaction is complete afterwards, even if the commit fails.
func (tx *Transaction) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTransactionComplete
	}
	tx.done = true

	tx.rebind()

	var oc opContext
	writes, swaps, err := tx.prepare(ctx, &oc)
	if err == nil && len(oc.ops) == 0 && len(writes) == 0 {
		return nil
	}
	if err == nil {
		var res bagstore.Result
		res, err = tx.st.Commit(ctx, tx.snap, bagstore.Batch{
			Operations: oc.ops,
			Records:    writes,
		})
		if err == nil {
			return tx.committed(oc.ops, res)
		}
	}

	for idx := len(swaps) - 1; idx >= 0; idx -= 1 {
		sw := swaps[idx]
		sw.rec.ReplaceBag(sw.name, sw.old)
		sw.new.Discard()
	}
	tx.discard()
	return err
}

func (tx *Transaction) committed(ops []linkbag.Operation, res bagstore.Result) error {
	flushed := map[*linkbag.Bag]bool{}
	for idx, op := range ops {
		flushed[op.Bag] = true
		if op.Kind == linkbag.DeleteOp {
			op.Bag.ConfirmDelete()
			continue
		}
		err := op.Bag.Committed(res.Pointers[idx], res.Snapshot)
		if err != nil {
			return err
		}
	}

	for _, h := range tx.order {
		rec := tx.records[h]
		for _, name := range rec.Fields() {
			b, _ := rec.Bag(name)
			if flushed[b] {
				continue
			}
			err := b.Committed(b.Pointer(), res.Snapshot)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Rollback discards every change made by the transaction.
func (tx *Transaction) Rollback() error {
	if tx.done {
		return ErrTransactionComplete
	}
	tx.done = true

	tx.discard()
	return nil
}
