package linkbag

import (
	"context"
	"io"
	"sort"

	"github.com/leftmike/linkbag/rid"
)

const (
	changesBatch = 32
)

// Iterator yields the members of a bag in ascending primary key order, each member as many
// times as its multiplicity. New entries come first, then the pending changes merged with the
// committed tree; a pending change shadows the committed entry with the same key.
//
// The bag may be modified between calls to Next; the iterator resumes after the last key it
// returned.
type Iterator struct {
	bag *Bag
	ctx context.Context

	news []*newEntry
	ndx  int

	changes  []Entry
	cdx      int
	cver     uint64
	cfilled  bool
	cdone    bool
	emitted  bool
	lastKey  rid.RID
	scanner  Scanner
	scanHead *Entry
	scanDone bool

	cur       rid.Pair
	hasCur    bool
	remaining int
	removed   bool
}

// Iterator returns a new iterator over the members of the bag; reads from the committed tree
// use ctx.
func (b *Bag) Iterator(ctx context.Context) *Iterator {
	it := &Iterator{
		bag: b,
		ctx: ctx,
	}
	for _, ne := range b.newEntries {
		it.news = append(it.news, ne)
	}
	sort.Slice(it.news,
		func(i, j int) bool {
			return it.news[i].seq < it.news[j].seq
		})

	if b.mode == Embedded || b.reader == nil || b.ptr == (Pointer{}) {
		it.scanDone = true
	}
	return it
}

func (it *Iterator) fillChanges() {
	it.changes = it.changes[:0]
	it.cdx = 0
	fn := func(e Entry) bool {
		it.changes = append(it.changes, e)
		return len(it.changes) < changesBatch
	}
	if it.emitted {
		it.bag.changes.AscendAfter(it.lastKey, fn)
	} else {
		it.bag.changes.Ascend(fn)
	}
	it.cdone = len(it.changes) < changesBatch
	it.cver = it.bag.changes.Version()
	it.cfilled = true
}

func (it *Iterator) peekChange() (Entry, bool) {
	if !it.cfilled || it.cver != it.bag.changes.Version() ||
		(it.cdx == len(it.changes) && !it.cdone) {

		it.fillChanges()
	}
	if it.cdx < len(it.changes) {
		return it.changes[it.cdx], true
	}
	return Entry{}, false
}

func (it *Iterator) peekScan() (Entry, bool, error) {
	if it.scanHead != nil {
		return *it.scanHead, true, nil
	}
	if it.scanDone {
		return Entry{}, false, nil
	}

	b := it.bag
	if it.scanner == nil {
		sc, err := b.reader.Scan(it.ctx, b.ptr, b.snap, rid.MinRID, rid.MaxRID)
		if err != nil {
			return Entry{}, false, err
		}
		it.scanner = sc
	}

	for {
		var e Entry
		err := it.scanner.Item(
			func(se Entry) error {
				e = se
				return nil
			})
		if err == io.EOF {
			it.scanDone = true
			it.scanner.Close()
			it.scanner = nil
			return Entry{}, false, nil
		} else if err != nil {
			return Entry{}, false, err
		}

		// Skip entries at or before a key already returned.
		if it.emitted && e.RID.Compare(it.lastKey) <= 0 {
			continue
		}
		if e.Change.Counter > b.maxCounter {
			e.Change.Counter = b.maxCounter
		}
		it.scanHead = &e
		return e, true, nil
	}
}

func (it *Iterator) nextMerged() (Entry, bool, error) {
	ce, cok := it.peekChange()
	se, sok, err := it.peekScan()
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if cok && (!sok || ce.RID.Compare(se.RID) <= 0) {
		if sok && ce.RID == se.RID {
			it.scanHead = nil
		}
		it.cdx += 1
		e = ce
	} else if sok {
		it.scanHead = nil
		e = se
	} else {
		return Entry{}, false, nil
	}

	it.emitted = true
	it.lastKey = e.RID
	return e, true, nil
}

// Next returns the next member or io.EOF when there are no more.
func (it *Iterator) Next() (rid.Pair, error) {
	it.removed = false
	for {
		if it.remaining > 0 {
			it.remaining -= 1
			it.hasCur = true
			return it.cur, nil
		}

		if it.ndx < len(it.news) {
			ne := it.news[it.ndx]
			it.ndx += 1
			if ne.counter <= 0 {
				continue
			}
			it.cur = rid.MakePair(ne.key, it.bag.resolve(ne.secondary))
			it.remaining = ne.counter
			continue
		}

		e, ok, err := it.nextMerged()
		if err != nil {
			return rid.Pair{}, err
		}
		if !ok {
			it.hasCur = false
			return rid.Pair{}, io.EOF
		}
		it.cur = rid.MakePair(e.RID, it.bag.resolve(e.Change.Secondary))
		it.remaining = e.Change.Counter
	}
}

// Remove removes, through the bag, the unit of the member most recently returned by Next.
// The units of that member not yet returned are still returned.
func (it *Iterator) Remove() error {
	if !it.hasCur || it.removed {
		return ErrNoCurrent
	}
	it.removed = true
	_, err := it.bag.Remove(it.ctx, it.cur.Primary)
	return err
}

func (it *Iterator) Close() {
	if it.scanner != nil {
		it.scanner.Close()
		it.scanner = nil
	}
	it.scanDone = true
	it.news = nil
	it.changes = nil
	it.cdone = true
	it.cfilled = true
	it.remaining = 0
	it.hasCur = false
}

// Members returns every member, repeated by multiplicity, in iteration order.
func (b *Bag) Members(ctx context.Context) ([]rid.Pair, error) {
	it := b.Iterator(ctx)
	defer it.Close()

	var pairs []rid.Pair
	for {
		p, err := it.Next()
		if err == io.EOF {
			return pairs, nil
		} else if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
}
