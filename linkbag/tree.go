package linkbag

import (
	"fmt"
	"sort"

	"github.com/leftmike/linkbag/rid"
)

type OpKind int

const (
	UpdateOp OpKind = iota
	DeleteOp
)

func (ok OpKind) String() string {
	switch ok {
	case UpdateOp:
		return "update"
	case DeleteOp:
		return "delete"
	}
	return fmt.Sprintf("OpKind(%d)", int(ok))
}

// Operation is a request to the backing store for the tree of one bag. For UpdateOp, Changes
// holds the absolute multiplicity of every key the transaction touched, in ascending key
// order; a zero counter removes the key. A zero Pointer for UpdateOp asks the store to
// allocate a new tree.
type Operation struct {
	Kind       OpKind
	Bag        *Bag
	Pointer    Pointer
	Changes    []Entry
	MaxCounter int
}

// Context collects the operations produced when the transaction owning a bag commits.
type Context interface {
	Push(op Operation)
}

// AssignPointer sets the pointer of a tree-backed bag whose tree has not been created yet.
func (b *Bag) AssignPointer(ptr Pointer) {
	if b.mode != TreeBacked || b.ptr != (Pointer{}) {
		panic(fmt.Sprintf("linkbag: assign pointer to bag with pointer %v", b.ptr))
	}
	b.ptr = ptr
}

// Flush pushes an update of the persisted tree holding the pending changes and new entries of
// a tree-backed bag. Every key must already be persistent.
func (b *Bag) Flush(sc Context) error {
	if b.mode != TreeBacked {
		return ErrNotTreeBacked
	}

	var changes []Entry
	b.changes.Ascend(
		func(e Entry) bool {
			e.Change.Secondary = b.resolve(e.Change.Secondary)
			changes = append(changes, e)
			return true
		})
	for _, ne := range b.newEntries {
		r, ok := b.resolve(ne.key).(rid.RID)
		if !ok {
			return fmt.Errorf("linkbag: flush with temporary key %s: %w", ne.key,
				ErrTemporaryKey)
		}
		changes = append(changes, Entry{
			RID: r,
			Change: Change{
				Counter:   ne.counter,
				Secondary: b.resolve(ne.secondary),
			},
		})
	}
	for _, e := range changes {
		if !e.Change.Secondary.IsPersistent() {
			return fmt.Errorf("linkbag: flush with temporary secondary key %s: %w",
				e.Change.Secondary, ErrTemporaryKey)
		}
	}
	sort.Slice(changes,
		func(i, j int) bool {
			return changes[i].RID.Less(changes[j].RID)
		})

	sc.Push(Operation{
		Kind:       UpdateOp,
		Bag:        b,
		Pointer:    b.ptr,
		Changes:    changes,
		MaxCounter: b.maxCounter,
	})
	return nil
}

// FlushDelete pushes the deletion of the persisted tree of a bag whose owner is deleted.
// Nothing is pushed for an embedded bag or a tree which was never created.
func (b *Bag) FlushDelete(sc Context) {
	if b.mode != TreeBacked || b.ptr == (Pointer{}) {
		return
	}
	sc.Push(Operation{
		Kind:    DeleteOp,
		Bag:     b,
		Pointer: b.ptr,
	})
}

// ConfirmDelete records that the persisted tree is gone; the bag is empty afterwards.
func (b *Bag) ConfirmDelete() {
	b.dropNewEntries()
	b.changes.Clear()
	b.base = nil
	b.ptr = Pointer{}
	b.size = 0
	b.committedSize = 0
	b.timeline = nil
	b.dirty = false
	b.dirtyNoChange = false
}

// Entries returns the members of an embedded bag, with their multiplicities, in ascending
// key order. Every key must already be persistent.
func (b *Bag) Entries() ([]Entry, error) {
	if b.mode != Embedded {
		return nil, fmt.Errorf("linkbag: entries of a tree-backed bag")
	}

	var entries []Entry
	b.changes.Ascend(
		func(e Entry) bool {
			if e.Change.Counter > 0 {
				e.Change.Secondary = b.resolve(e.Change.Secondary)
				entries = append(entries, e)
			}
			return true
		})
	for _, ne := range b.newEntries {
		if ne.counter <= 0 {
			continue
		}
		r, ok := b.resolve(ne.key).(rid.RID)
		if !ok {
			return nil, fmt.Errorf("linkbag: entries with temporary key %s: %w", ne.key,
				ErrTemporaryKey)
		}
		entries = append(entries, Entry{
			RID: r,
			Change: Change{
				Counter:   ne.counter,
				Secondary: b.resolve(ne.secondary),
			},
		})
	}
	for _, e := range entries {
		if !e.Change.Secondary.IsPersistent() {
			return nil, fmt.Errorf("linkbag: entries with temporary secondary key %s: %w",
				e.Change.Secondary, ErrTemporaryKey)
		}
	}
	sort.Slice(entries,
		func(i, j int) bool {
			return entries[i].RID.Less(entries[j].RID)
		})
	return entries, nil
}
