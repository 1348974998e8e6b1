// Package record holds records owning named link bag fields.
package record

import (
	"fmt"
	"sort"

	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/rid"
	"github.com/leftmike/linkbag/storage/encode"
)

type Record struct {
	id      rid.Ref
	handle  linkbag.OwnerHandle
	fields  map[string]*linkbag.Bag
	deleted bool
}

// New returns an empty record; handle is how its bags refer to it.
func New(id rid.Ref, handle linkbag.OwnerHandle) *Record {
	return &Record{
		id:     id,
		handle: handle,
		fields: map[string]*linkbag.Bag{},
	}
}

// Decode returns the record id from its stored value; mk makes the bag for each field.
func Decode(id rid.RID, handle linkbag.OwnerHandle, val []byte,
	mk func(bv encode.BagValue) (*linkbag.Bag, error)) (*Record, error) {

	bags, err := encode.DecodeRecord(val)
	if err != nil {
		return nil, fmt.Errorf("record %s: %s", id, err)
	}

	r := New(id, handle)
	for _, bv := range bags {
		b, err := mk(bv)
		if err != nil {
			return nil, err
		}
		err = r.SetBag(bv.Name, b)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Record) ID() rid.Ref {
	return r.id
}

// Rebind replaces the temporary identity of the record once it has been stored.
func (r *Record) Rebind(id rid.RID) {
	r.id = id
}

func (r *Record) Handle() linkbag.OwnerHandle {
	return r.handle
}

func (r *Record) Bag(name string) (*linkbag.Bag, bool) {
	b, ok := r.fields[name]
	return b, ok
}

// SetBag makes b the named field of the record. A bag belongs to at most one record.
func (r *Record) SetBag(name string, b *linkbag.Bag) error {
	err := b.SetOwner(r.handle)
	if err != nil {
		return fmt.Errorf("record %s: field %s: %w", r.id, name, err)
	}
	r.fields[name] = b
	return nil
}

// ReplaceBag swaps the named field for nb, which holds the same members in another mode.
func (r *Record) ReplaceBag(name string, nb *linkbag.Bag) {
	if ob, ok := r.fields[name]; ok && ob.Owner() != nb.Owner() {
		panic(fmt.Sprintf("record %s: field %s: replaced by bag of another owner", r.id, name))
	}
	r.fields[name] = nb
}

// Fields returns the names of the bag fields in sorted order.
func (r *Record) Fields() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Record) Delete() {
	r.deleted = true
}

func (r *Record) IsDeleted() bool {
	return r.deleted
}

// Encode returns the stored value of the record: the members of each embedded bag and the
// pointer and size of each tree-backed bag.
func (r *Record) Encode() ([]byte, error) {
	var bags []encode.BagValue
	for _, name := range r.Fields() {
		b := r.fields[name]
		bv := encode.BagValue{
			Name: name,
		}
		if b.Mode() == linkbag.TreeBacked {
			bv.Tree = true
			bv.Pointer = b.Pointer().Collection
			bv.Size = b.Size()
		} else {
			entries, err := b.Entries()
			if err != nil {
				return nil, fmt.Errorf("record %s: field %s: %w", r.id, name, err)
			}
			bv.Entries = entries
		}
		bags = append(bags, bv)
	}
	return encode.EncodeRecord(bags), nil
}

func (r *Record) String() string {
	return r.id.String()
}
