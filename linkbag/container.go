package linkbag

import (
	"fmt"
	"sort"

	"github.com/leftmike/linkbag/rid"
)

type ContainerKind int

const (
	ArrayContainer ContainerKind = iota
	TreeContainer
)

// Container holds pending changes in ascending key order. Every mutation advances Version;
// a caller holding a position in the container must reposition after a version change.
type Container interface {
	Get(r rid.RID) (Change, bool)
	Put(r rid.RID, c Change)
	Delete(r rid.RID) bool
	Len() int
	Version() uint64
	Clear()

	Ascend(fn func(e Entry) bool)
	// AscendAfter visits entries with keys strictly greater than r.
	AscendAfter(r rid.RID, fn func(e Entry) bool)
	// DescendFrom visits entries with keys less than or equal to r, largest first.
	DescendFrom(r rid.RID, fn func(e Entry) bool)
}

func (ck ContainerKind) String() string {
	switch ck {
	case ArrayContainer:
		return "array"
	case TreeContainer:
		return "tree"
	}
	return fmt.Sprintf("ContainerKind(%d)", int(ck))
}

func ParseContainerKind(s string) (ContainerKind, error) {
	switch s {
	case "array":
		return ArrayContainer, nil
	case "tree":
		return TreeContainer, nil
	}
	return 0, fmt.Errorf("linkbag: container must be array or tree: %s", s)
}

func NewContainer(kind ContainerKind) Container {
	switch kind {
	case ArrayContainer:
		return NewArrayContainer()
	case TreeContainer:
		return NewTreeContainer()
	}
	panic(fmt.Sprintf("linkbag: unexpected container kind: %d", kind))
}

type arrayContainer struct {
	entries []Entry
	ver     uint64
}

// NewArrayContainer returns a container backed by a sorted slice; suited to small or
// append-mostly bags.
func NewArrayContainer() Container {
	return &arrayContainer{}
}

func (ac *arrayContainer) search(r rid.RID) (int, bool) {
	idx := sort.Search(len(ac.entries),
		func(i int) bool {
			return ac.entries[i].RID.Compare(r) >= 0
		})
	return idx, idx < len(ac.entries) && ac.entries[idx].RID == r
}

func (ac *arrayContainer) Get(r rid.RID) (Change, bool) {
	idx, ok := ac.search(r)
	if !ok {
		return Change{}, false
	}
	return ac.entries[idx].Change, true
}

func (ac *arrayContainer) Put(r rid.RID, c Change) {
	ac.ver += 1

	idx, ok := ac.search(r)
	if ok {
		ac.entries[idx].Change = c
		return
	}
	ac.entries = append(ac.entries, Entry{})
	copy(ac.entries[idx+1:], ac.entries[idx:])
	ac.entries[idx] = Entry{RID: r, Change: c}
}

func (ac *arrayContainer) Delete(r rid.RID) bool {
	idx, ok := ac.search(r)
	if !ok {
		return false
	}
	ac.ver += 1
	ac.entries = append(ac.entries[:idx], ac.entries[idx+1:]...)
	return true
}

func (ac *arrayContainer) Len() int {
	return len(ac.entries)
}

func (ac *arrayContainer) Version() uint64 {
	return ac.ver
}

func (ac *arrayContainer) Clear() {
	ac.ver += 1
	ac.entries = nil
}

func (ac *arrayContainer) ascendFrom(idx int, fn func(e Entry) bool) {
	for idx < len(ac.entries) {
		if !fn(ac.entries[idx]) {
			break
		}
		idx += 1
	}
}

func (ac *arrayContainer) Ascend(fn func(e Entry) bool) {
	ac.ascendFrom(0, fn)
}

func (ac *arrayContainer) AscendAfter(r rid.RID, fn func(e Entry) bool) {
	idx, ok := ac.search(r)
	if ok {
		idx += 1
	}
	ac.ascendFrom(idx, fn)
}

func (ac *arrayContainer) DescendFrom(r rid.RID, fn func(e Entry) bool) {
	idx, ok := ac.search(r)
	if !ok {
		idx -= 1
	}
	for idx >= 0 {
		if !fn(ac.entries[idx]) {
			break
		}
		idx -= 1
	}
}
