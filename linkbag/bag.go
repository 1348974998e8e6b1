package linkbag

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/leftmike/linkbag/rid"
)

const (
	DefaultMaxCounter = math.MaxInt32

	NoOwner OwnerHandle = 0
)

var (
	ErrNilKey           = errors.New("linkbag: nil primary key")
	ErrTrackingDisabled = errors.New("linkbag: change tracking is not enabled")
	ErrOwnerConflict    = errors.New("linkbag: bag already has a different owner")
	ErrImmutable        = errors.New("linkbag: view is immutable")
	ErrTemporaryKey     = errors.New("linkbag: key is still temporary")
	ErrNoCurrent        = errors.New("linkbag: iterator has no current member")
	ErrNotTreeBacked    = errors.New("linkbag: bag is not tree-backed")
)

type Mode int

const (
	Embedded Mode = iota
	TreeBacked
)

// Snapshot bounds which committed changes a backing store read observes.
type Snapshot uint64

// Pointer locates the persisted tree of a tree-backed bag; the zero Pointer means the tree
// has not been created yet.
type Pointer struct {
	Collection uint64
}

// OwnerHandle refers to the owning record within its transaction. The bag only hands it back
// to the Tracker; it never dereferences it.
type OwnerHandle uint64

type Reader interface {
	Get(ctx context.Context, ptr Pointer, snap Snapshot, key rid.RID) (Change, bool, error)
	Scan(ctx context.Context, ptr Pointer, snap Snapshot, minKey, maxKey rid.RID) (Scanner,
		error)
}

// Scanner returns committed entries in ascending key order; Item returns io.EOF when there
// are no more entries.
type Scanner interface {
	Item(fn func(e Entry) error) error
	Close()
}

type RebindListener interface {
	BeginRebind(rb rid.Rebind)
	EndRebind(rb rid.Rebind)
}

type Identities interface {
	Resolve(r rid.Ref) rid.Ref
	Listen(t rid.TempRID, l RebindListener)
	Unlisten(t rid.TempRID, l RebindListener)
}

type Tracker interface {
	Dirty(h OwnerHandle)
	DirtyNoChange(h OwnerHandle)
}

type Options struct {
	MaxCounter int
	Container  ContainerKind
	Identities Identities
	Tracker    Tracker

	// Used by tree-backed bags only.
	Reader   Reader
	Snapshot Snapshot
}

type Bag struct {
	mode       Mode
	kind       ContainerKind
	maxCounter int
	ids        Identities
	tracker    Tracker
	owner      OwnerHandle

	changes    Container
	newEntries map[rid.Ref]*newEntry
	rebinding  map[rid.TempRID]*newEntry
	nextSeq    uint64

	size          int
	committedSize int
	localChanges  uint64
	dirty         bool
	dirtyNoChange bool

	tracking bool
	timeline []Event

	// Embedded: the committed entries, restored by Discard.
	base []Entry

	// Tree-backed.
	ptr    Pointer
	reader Reader
	snap   Snapshot
}

type newEntry struct {
	key       rid.Ref
	counter   int
	secondary rid.Ref
	seq       uint64
}

func newBag(mode Mode, opts Options) *Bag {
	if opts.MaxCounter <= 0 {
		opts.MaxCounter = DefaultMaxCounter
	}
	return &Bag{
		mode:       mode,
		kind:       opts.Container,
		maxCounter: opts.MaxCounter,
		ids:        opts.Identities,
		tracker:    opts.Tracker,
		changes:    NewContainer(opts.Container),
		newEntries: map[rid.Ref]*newEntry{},
		reader:     opts.Reader,
		snap:       opts.Snapshot,
	}
}

// NewEmbedded returns an empty bag whose whole state lives in the owning record.
func NewEmbedded(opts Options) *Bag {
	return newBag(Embedded, opts)
}

// NewTree returns a bag whose committed state lives in the persisted tree at ptr and holds
// size members.
func NewTree(ptr Pointer, size int, opts Options) *Bag {
	b := newBag(TreeBacked, opts)
	b.ptr = ptr
	b.size = size
	b.committedSize = size
	return b
}

// Load replaces the committed state of an embedded bag with entries, such as those decoded
// from the owning record.
func (b *Bag) Load(entries []Entry) {
	if b.mode != Embedded {
		panic("linkbag: load of a tree-backed bag")
	}

	b.changes.Clear()
	b.size = 0
	for _, e := range entries {
		if e.Change.Counter <= 0 {
			continue
		}
		if e.Change.Counter > b.maxCounter {
			e.Change.Counter = b.maxCounter
		}
		if e.Change.Secondary == nil {
			e.Change.Secondary = e.RID
		}
		b.changes.Put(e.RID, e.Change)
		b.size += e.Change.Counter
	}
	b.committedSize = b.size
	b.captureBase()
}

func (b *Bag) captureBase() {
	b.base = b.base[:0]
	b.changes.Ascend(
		func(e Entry) bool {
			b.base = append(b.base, e)
			return true
		})
}

func (b *Bag) Mode() Mode {
	return b.mode
}

func (b *Bag) ContainerKind() ContainerKind {
	return b.kind
}

func (b *Bag) MaxCounter() int {
	return b.maxCounter
}

func (b *Bag) Pointer() Pointer {
	return b.ptr
}

func (b *Bag) Size() int {
	return b.size
}

// IsSizeAware reports whether Size is maintained without reading the backing store.
func (b *Bag) IsSizeAware() bool {
	return true
}

func (b *Bag) IsDirty() bool {
	return b.dirty
}

// IsDirtyNoChange reports whether a removal found nothing to remove, which means another
// transaction probably removed the member concurrently.
func (b *Bag) IsDirtyNoChange() bool {
	return b.dirtyNoChange
}

func (b *Bag) LocalChanges() uint64 {
	return b.localChanges
}

func (b *Bag) Owner() OwnerHandle {
	return b.owner
}

func (b *Bag) SetOwner(h OwnerHandle) error {
	if h == NoOwner {
		return fmt.Errorf("linkbag: invalid owner handle: %d", h)
	}
	if b.owner != NoOwner && b.owner != h {
		return ErrOwnerConflict
	}
	b.owner = h
	return nil
}

func (b *Bag) resolve(r rid.Ref) rid.Ref {
	if b.ids == nil || r == nil || r.IsPersistent() {
		return r
	}
	return b.ids.Resolve(r)
}

// absolute returns the committed multiplicity of r outside of the pending changes.
func (b *Bag) absolute(ctx context.Context, r rid.RID) (Change, bool, error) {
	if b.mode == Embedded || b.reader == nil || b.ptr == (Pointer{}) {
		return Change{}, false, nil
	}
	c, ok, err := b.reader.Get(ctx, b.ptr, b.snap, r)
	if err != nil {
		return Change{}, false, err
	}
	if ok && c.Counter > b.maxCounter {
		c.Counter = b.maxCounter
	}
	return c, ok, nil
}

func (b *Bag) changed(ev Event) {
	b.dirty = true
	if b.tracker != nil && b.owner != NoOwner {
		b.tracker.Dirty(b.owner)
	}
	if b.tracking {
		b.timeline = append(b.timeline, ev)
	}
}

func (b *Bag) changedNothing() {
	b.dirty = true
	b.dirtyNoChange = true
	if b.tracker != nil && b.owner != NoOwner {
		b.tracker.DirtyNoChange(b.owner)
	}
}

// Add adds one unit of primary to the bag; secondary may be nil for a plain reference.
// Adding a member already at the multiplicity cap changes nothing.
func (b *Bag) Add(ctx context.Context, primary, secondary rid.Ref) error {
	if primary == nil {
		return ErrNilKey
	}
	primary = b.resolve(primary)
	if secondary == nil {
		secondary = primary
	} else {
		secondary = b.resolve(secondary)
	}

	var added bool
	if ne, ok := b.newEntries[primary]; ok {
		added = ne.increment(b.maxCounter)
		ne.secondary = secondary
	} else if r, ok := primary.(rid.RID); ok {
		c, ok := b.changes.Get(r)
		if !ok {
			abs, _, err := b.absolute(ctx, r)
			if err != nil {
				return err
			}
			c = Change{Counter: abs.Counter}
			b.localChanges += 1
		}
		added = c.increment(b.maxCounter)
		c.Secondary = secondary
		b.changes.Put(r, c)
	} else {
		t := primary.(rid.TempRID)
		ne := &newEntry{
			key:       t,
			secondary: secondary,
			seq:       b.nextSeq,
		}
		b.nextSeq += 1
		b.newEntries[t] = ne
		if b.ids != nil {
			b.ids.Listen(t, b)
		}
		added = ne.increment(b.maxCounter)
	}

	if added {
		b.size += 1
		b.changed(Event{
			Kind: Added,
			Key:  primary,
			New:  rid.MakePair(primary, secondary),
		})
	}
	return nil
}

// Remove removes one unit of primary. It returns false, and marks the bag dirty without a
// content change, when there was nothing to remove.
func (b *Bag) Remove(ctx context.Context, primary rid.Ref) (bool, error) {
	if primary == nil {
		return false, ErrNilKey
	}
	primary = b.resolve(primary)

	if ne, ok := b.newEntries[primary]; ok {
		old := rid.MakePair(ne.key, ne.secondary)
		ne.counter -= 1
		if ne.counter <= 0 {
			b.dropNewEntry(ne)
		}
		b.size -= 1
		b.changed(Event{
			Kind: Removed,
			Key:  primary,
			Old:  old,
		})
		return true, nil
	}

	r, ok := primary.(rid.RID)
	if !ok {
		b.changedNothing()
		return false, nil
	}

	var removed bool
	c, ok := b.changes.Get(r)
	if ok {
		removed = c.decrement()
		if removed {
			if c.Counter == 0 && b.mode == Embedded {
				b.changes.Delete(r)
			} else {
				b.changes.Put(r, c)
			}
		}
	} else {
		abs, found, err := b.absolute(ctx, r)
		if err != nil {
			return false, err
		}
		if found && abs.Counter > 0 {
			c = abs
			c.Counter -= 1
			b.changes.Put(r, c)
			b.localChanges += 1
			removed = true
		}
	}

	if !removed {
		b.changedNothing()
		return false, nil
	}

	b.size -= 1
	b.changed(Event{
		Kind: Removed,
		Key:  primary,
		Old:  rid.MakePair(r, c.Secondary),
	})
	return true, nil
}

// Count returns the multiplicity of primary.
func (b *Bag) Count(ctx context.Context, primary rid.Ref) (int, error) {
	if primary == nil {
		return 0, ErrNilKey
	}
	primary = b.resolve(primary)

	if ne, ok := b.newEntries[primary]; ok {
		return ne.counter, nil
	}
	r, ok := primary.(rid.RID)
	if !ok {
		return 0, nil
	}
	if c, ok := b.changes.Get(r); ok {
		return c.Counter, nil
	}
	abs, _, err := b.absolute(ctx, r)
	if err != nil {
		return 0, err
	}
	return abs.Counter, nil
}

func (b *Bag) Contains(ctx context.Context, primary rid.Ref) (bool, error) {
	cnt, err := b.Count(ctx, primary)
	if err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// Changes visits the pending changes in ascending key order.
func (b *Bag) Changes(fn func(e Entry) bool) {
	b.changes.Ascend(fn)
}

// ChangesFrom visits the pending changes with keys at or below r, in descending key order.
func (b *Bag) ChangesFrom(r rid.RID, fn func(e Entry) bool) {
	b.changes.DescendFrom(r, fn)
}

func (b *Bag) NewEntries() int {
	return len(b.newEntries)
}

func (ne *newEntry) increment(max int) bool {
	if ne.counter >= max {
		return false
	}
	ne.counter += 1
	return true
}

func (b *Bag) dropNewEntry(ne *newEntry) {
	ne.counter = 0
	delete(b.newEntries, ne.key)
	if t, ok := ne.key.(rid.TempRID); ok && b.ids != nil {
		b.ids.Unlisten(t, b)
	}
}

func (b *Bag) dropNewEntries() {
	for _, ne := range b.newEntries {
		b.dropNewEntry(ne)
	}
	for t, ne := range b.rebinding {
		ne.counter = 0
		if b.ids != nil {
			b.ids.Unlisten(t, b)
		}
	}
	b.rebinding = nil
}

// Discard drops every pending change and new entry, returning the bag to its committed
// state; used when the owning transaction rolls back.
func (b *Bag) Discard() {
	b.dropNewEntries()
	b.changes.Clear()
	if b.mode == Embedded {
		for _, e := range b.base {
			b.changes.Put(e.RID, e.Change)
		}
	}
	b.size = b.committedSize
	b.timeline = nil
	b.dirty = false
	b.dirtyNoChange = false
}

// Committed records that the pending state of the bag is now durable: the persisted tree at
// ptr holds the merged members as of snap.
func (b *Bag) Committed(ptr Pointer, snap Snapshot) error {
	if b.mode == TreeBacked {
		b.changes.Clear()
		b.dropNewEntries()
		b.ptr = ptr
		b.snap = snap
	} else {
		var temps []Entry
		b.changes.Ascend(
			func(e Entry) bool {
				if !e.Change.Secondary.IsPersistent() {
					temps = append(temps, e)
				}
				return true
			})
		for _, e := range temps {
			e.Change.Secondary = b.resolve(e.Change.Secondary)
			b.changes.Put(e.RID, e.Change)
		}
		for _, ne := range b.newEntries {
			r, ok := ne.key.(rid.RID)
			if !ok {
				return fmt.Errorf("linkbag: commit with temporary key %s: %w", ne.key,
					ErrTemporaryKey)
			}
			b.changes.Put(r, Change{Counter: ne.counter, Secondary: b.resolve(ne.secondary)})
		}
		b.newEntries = map[rid.Ref]*newEntry{}
		b.captureBase()
	}

	b.committedSize = b.size
	b.timeline = nil
	b.dirty = false
	b.dirtyNoChange = false
	return nil
}
