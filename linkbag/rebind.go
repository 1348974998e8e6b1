package linkbag

import (
	"github.com/leftmike/linkbag/rid"
)

// BeginRebind parks the new entry for rb.Old until EndRebind supplies its persistent key.
// Lookups of the key between the two calls do not find it.
func (b *Bag) BeginRebind(rb rid.Rebind) {
	ne, ok := b.newEntries[rb.Old]
	if !ok {
		return
	}
	delete(b.newEntries, rb.Old)

	if b.rebinding == nil {
		b.rebinding = map[rid.TempRID]*newEntry{}
	}
	b.rebinding[rb.Old] = ne
}

// EndRebind files the parked entry under rb.New; the counter, secondary key and iteration
// position are unchanged.
func (b *Bag) EndRebind(rb rid.Rebind) {
	ne, ok := b.rebinding[rb.Old]
	if !ok {
		return
	}
	delete(b.rebinding, rb.Old)

	ne.key = rb.New
	if ne.secondary == rid.Ref(rb.Old) {
		ne.secondary = rb.New
	}
	b.newEntries[rb.New] = ne
}
