package linkbag

import (
	"github.com/google/btree"

	"github.com/leftmike/linkbag/rid"
)

const (
	treeDegree = 16
)

type treeContainer struct {
	tree *btree.BTree
	ver  uint64
}

type changeItem struct {
	rid    rid.RID
	change Change
}

func (ci changeItem) Less(item btree.Item) bool {
	return ci.rid.Less(item.(changeItem).rid)
}

// NewTreeContainer returns a container backed by a B-tree; suited to large bags with random
// updates.
func NewTreeContainer() Container {
	return &treeContainer{
		tree: btree.New(treeDegree),
	}
}

func (tc *treeContainer) Get(r rid.RID) (Change, bool) {
	item := tc.tree.Get(changeItem{rid: r})
	if item == nil {
		return Change{}, false
	}
	return item.(changeItem).change, true
}

func (tc *treeContainer) Put(r rid.RID, c Change) {
	tc.ver += 1
	tc.tree.ReplaceOrInsert(changeItem{rid: r, change: c})
}

func (tc *treeContainer) Delete(r rid.RID) bool {
	if tc.tree.Delete(changeItem{rid: r}) == nil {
		return false
	}
	tc.ver += 1
	return true
}

func (tc *treeContainer) Len() int {
	return tc.tree.Len()
}

func (tc *treeContainer) Version() uint64 {
	return tc.ver
}

func (tc *treeContainer) Clear() {
	tc.ver += 1
	tc.tree = btree.New(treeDegree)
}

func (tc *treeContainer) Ascend(fn func(e Entry) bool) {
	tc.tree.Ascend(
		func(item btree.Item) bool {
			ci := item.(changeItem)
			return fn(Entry{RID: ci.rid, Change: ci.change})
		})
}

func (tc *treeContainer) AscendAfter(r rid.RID, fn func(e Entry) bool) {
	tc.tree.AscendGreaterOrEqual(changeItem{rid: r},
		func(item btree.Item) bool {
			ci := item.(changeItem)
			if ci.rid == r {
				return true
			}
			return fn(Entry{RID: ci.rid, Change: ci.change})
		})
}

func (tc *treeContainer) DescendFrom(r rid.RID, fn func(e Entry) bool) {
	tc.tree.DescendLessOrEqual(changeItem{rid: r},
		func(item btree.Item) bool {
			ci := item.(changeItem)
			return fn(Entry{RID: ci.rid, Change: ci.change})
		})
}
