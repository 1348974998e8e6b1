package txn

import (
	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/rid"
)

// identities allocates the temporary identities of a transaction and, at commit, replaces
// them with persistent identities.
type identities struct {
	nextSerial int64
	allocated  []rid.TempRID
	bound      map[rid.TempRID]rid.RID
	listeners  map[rid.TempRID][]linkbag.RebindListener
}

func newIdentities() *identities {
	return &identities{
		nextSerial: 1,
		bound:      map[rid.TempRID]rid.RID{},
		listeners:  map[rid.TempRID][]linkbag.RebindListener{},
	}
}

func (ids *identities) newTempRID(cluster int32) rid.TempRID {
	t := rid.TempRID{Cluster: cluster, Serial: ids.nextSerial}
	ids.nextSerial += 1
	ids.allocated = append(ids.allocated, t)
	return t
}

func (ids *identities) Resolve(r rid.Ref) rid.Ref {
	if t, ok := r.(rid.TempRID); ok {
		if pr, ok := ids.bound[t]; ok {
			return pr
		}
	}
	return r
}

func (ids *identities) Listen(t rid.TempRID, l linkbag.RebindListener) {
	for _, ol := range ids.listeners[t] {
		if ol == l {
			return
		}
	}
	ids.listeners[t] = append(ids.listeners[t], l)
}

func (ids *identities) Unlisten(t rid.TempRID, l linkbag.RebindListener) {
	ls := ids.listeners[t]
	for idx, ol := range ls {
		if ol == l {
			ids.listeners[t] = append(ls[:idx], ls[idx+1:]...)
			if len(ids.listeners[t]) == 0 {
				delete(ids.listeners, t)
			}
			return
		}
	}
}

// assign binds every allocated identity to a persistent identity from next. Every listener
// of an identity sees BeginRebind before the identity resolves to its persistent identity
// and EndRebind after.
func (ids *identities) assign(next func(cluster int32) rid.RID) []rid.Rebind {
	var rebinds []rid.Rebind
	for _, t := range ids.allocated {
		if _, ok := ids.bound[t]; ok {
			continue
		}
		rb := rid.Rebind{Old: t, New: next(t.Cluster)}
		rebinds = append(rebinds, rb)

		ls := append([]linkbag.RebindListener(nil), ids.listeners[t]...)
		for _, l := range ls {
			l.BeginRebind(rb)
		}
		ids.bound[t] = rb.New
		for _, l := range ls {
			l.EndRebind(rb)
		}
		delete(ids.listeners, t)
	}
	return rebinds
}
