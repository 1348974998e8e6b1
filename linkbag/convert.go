package linkbag

import (
	"context"

	"github.com/leftmike/linkbag/rid"
)

// Convert returns a bag of the given mode holding the same members as b. The new bag has no
// committed state: a tree-backed result flushes every member into a newly allocated tree and an
// embedded result serializes every member into its owner. The owner is carried over.
func (b *Bag) Convert(ctx context.Context, mode Mode, opts Options) (*Bag, error) {
	if opts.MaxCounter <= 0 {
		opts.MaxCounter = b.maxCounter
	}
	if opts.Identities == nil {
		opts.Identities = b.ids
	}
	if opts.Tracker == nil {
		opts.Tracker = b.tracker
	}
	nb := newBag(mode, opts)
	nb.owner = b.owner

	it := b.Iterator(ctx)
	defer it.Close()

	for _, ne := range it.news {
		if ne.counter <= 0 {
			continue
		}
		nb.put(ne.key, ne.counter, b.resolve(ne.secondary))
	}
	it.ndx = len(it.news)

	for {
		e, ok, err := it.nextMerged()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if e.Change.Counter <= 0 {
			continue
		}
		nb.put(e.RID, e.Change.Counter, b.resolve(e.Change.Secondary))
	}

	nb.dirty = true
	return nb, nil
}

func (b *Bag) put(key rid.Ref, cnt int, secondary rid.Ref) {
	if cnt > b.maxCounter {
		cnt = b.maxCounter
	}
	if r, ok := key.(rid.RID); ok {
		b.changes.Put(r, Change{Counter: cnt, Secondary: secondary})
	} else {
		t := key.(rid.TempRID)
		b.newEntries[t] = &newEntry{
			key:       t,
			counter:   cnt,
			secondary: secondary,
			seq:       b.nextSeq,
		}
		b.nextSeq += 1
		if b.ids != nil {
			b.ids.Listen(t, b)
		}
	}
	b.size += cnt
}
