package linkbag

import (
	"context"
	"fmt"
	"io"

	"github.com/leftmike/linkbag/rid"
)

type EventKind int

const (
	Added EventKind = iota
	Removed
)

// Event records one unit added to or removed from a bag. New is set for Added and Old for
// Removed.
type Event struct {
	Kind EventKind
	Key  rid.Ref
	Old  rid.Pair
	New  rid.Pair
}

func (ek EventKind) String() string {
	switch ek {
	case Added:
		return "add"
	case Removed:
		return "remove"
	}
	return fmt.Sprintf("EventKind(%d)", int(ek))
}

func (ev Event) String() string {
	if ev.Kind == Added {
		return fmt.Sprintf("add %s", ev.New)
	}
	return fmt.Sprintf("remove %s", ev.Old)
}

// EnableTracking starts recording the timeline of events used by Rollback.
func (b *Bag) EnableTracking() {
	b.tracking = true
}

func (b *Bag) DisableTracking() {
	b.tracking = false
	b.timeline = nil
}

func (b *Bag) IsTracking() bool {
	return b.tracking
}

func (b *Bag) Timeline() []Event {
	return b.timeline
}

// Rollback returns a new embedded bag holding the members this bag had before the events in
// its timeline: the current members are copied and the timeline is undone newest first.
func (b *Bag) Rollback(ctx context.Context) (*Bag, error) {
	if !b.tracking {
		return nil, ErrTrackingDisabled
	}

	nb := NewEmbedded(Options{
		MaxCounter: b.maxCounter,
		Container:  b.kind,
	})

	it := b.Iterator(ctx)
	defer it.Close()
	for {
		p, err := it.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		err = nb.Add(ctx, p.Primary, p.Secondary)
		if err != nil {
			return nil, err
		}
	}

	for idx := len(b.timeline) - 1; idx >= 0; idx -= 1 {
		ev := b.timeline[idx]
		var err error
		switch ev.Kind {
		case Added:
			_, err = nb.Remove(ctx, b.resolve(ev.Key))
		case Removed:
			err = nb.Add(ctx, b.resolve(ev.Old.Primary), b.resolve(ev.Old.Secondary))
		default:
			panic(fmt.Sprintf("linkbag: unexpected event kind: %d", ev.Kind))
		}
		if err != nil {
			return nil, err
		}
	}

	return nb, nil
}
