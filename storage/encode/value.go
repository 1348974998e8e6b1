package encode

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/rid"
)

const (
	changeCounterField   = 1
	changeSecondaryField = 2

	recordFormatField = 1
	recordBagField    = 2

	bagNameField    = 1
	bagTreeField    = 2
	bagEntryField   = 3
	bagPointerField = 4
	bagSizeField    = 5

	entryRIDField       = 1
	entryCounterField   = 2
	entrySecondaryField = 3

	recordFormat = 1
)

var (
	errBadRID = errors.New("encode: bad rid")
)

// BagValue is the serialized form of one link bag field of a record: the members of an
// embedded bag or the tree pointer and size of a tree-backed bag.
type BagValue struct {
	Name    string
	Tree    bool
	Entries []linkbag.Entry
	Pointer uint64
	Size    int
}

func appendRID(buf []byte, num protowire.Number, r rid.RID) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, encodeRID(make([]byte, 0, 12), r))
}

func consumeRID(buf []byte) (rid.RID, int) {
	b, n := protowire.ConsumeBytes(buf)
	if n < 0 {
		return rid.RID{}, n
	}
	if len(b) != 12 {
		return rid.RID{}, -1
	}
	return decodeRID(b), n
}

// EncodeChange returns the value of the entry for key; the secondary key is only stored when
// it differs from key. A change with a zero counter must be written as a tombstone instead.
func EncodeChange(key rid.RID, c linkbag.Change) []byte {
	if c.Counter <= 0 {
		panic(fmt.Sprintf("encode: change with counter %d", c.Counter))
	}
	buf := protowire.AppendTag(nil, changeCounterField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.Counter))
	if sr, ok := c.Secondary.(rid.RID); ok && sr != key {
		buf = appendRID(buf, changeSecondaryField, sr)
	}
	return buf
}

func DecodeChange(key rid.RID, val []byte) (linkbag.Change, error) {
	c := linkbag.Change{Secondary: key}
	for len(val) > 0 {
		num, typ, n := protowire.ConsumeTag(val)
		if n < 0 {
			return linkbag.Change{}, protowire.ParseError(n)
		}
		val = val[n:]

		switch {
		case num == changeCounterField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(val)
			c.Counter = int(v)
		case num == changeSecondaryField && typ == protowire.BytesType:
			c.Secondary, n = consumeRID(val)
		default:
			n = protowire.ConsumeFieldValue(num, typ, val)
		}
		if n < 0 {
			return linkbag.Change{}, fmt.Errorf("encode: change %s: %s", key,
				protowire.ParseError(n))
		}
		val = val[n:]
	}
	return c, nil
}

func appendEntry(buf []byte, e linkbag.Entry) []byte {
	var eb []byte
	eb = appendRID(eb, entryRIDField, e.RID)
	eb = protowire.AppendTag(eb, entryCounterField, protowire.VarintType)
	eb = protowire.AppendVarint(eb, uint64(e.Change.Counter))
	if sr, ok := e.Change.Secondary.(rid.RID); ok && sr != e.RID {
		eb = appendRID(eb, entrySecondaryField, sr)
	}

	buf = protowire.AppendTag(buf, bagEntryField, protowire.BytesType)
	return protowire.AppendBytes(buf, eb)
}

func appendBag(buf []byte, bv BagValue) []byte {
	var bb []byte
	bb = protowire.AppendTag(bb, bagNameField, protowire.BytesType)
	bb = protowire.AppendString(bb, bv.Name)
	if bv.Tree {
		bb = protowire.AppendTag(bb, bagTreeField, protowire.VarintType)
		bb = protowire.AppendVarint(bb, 1)
		bb = protowire.AppendTag(bb, bagPointerField, protowire.VarintType)
		bb = protowire.AppendVarint(bb, bv.Pointer)
		bb = protowire.AppendTag(bb, bagSizeField, protowire.VarintType)
		bb = protowire.AppendVarint(bb, uint64(bv.Size))
	} else {
		for _, e := range bv.Entries {
			bb = appendEntry(bb, e)
		}
	}

	buf = protowire.AppendTag(buf, recordBagField, protowire.BytesType)
	return protowire.AppendBytes(buf, bb)
}

// EncodeRecord returns the value of a record holding bags; the value of a record is never
// empty.
func EncodeRecord(bags []BagValue) []byte {
	buf := protowire.AppendTag(nil, recordFormatField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, recordFormat)
	for _, bv := range bags {
		buf = appendBag(buf, bv)
	}
	return buf
}

func decodeEntry(buf []byte) (linkbag.Entry, error) {
	var e linkbag.Entry
	var secondary rid.Ref
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		buf = buf[n:]

		switch {
		case num == entryRIDField && typ == protowire.BytesType:
			e.RID, n = consumeRID(buf)
		case num == entryCounterField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(buf)
			e.Change.Counter = int(v)
		case num == entrySecondaryField && typ == protowire.BytesType:
			var sr rid.RID
			sr, n = consumeRID(buf)
			secondary = sr
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
		}
		if n < 0 {
			return e, errBadRID
		}
		buf = buf[n:]
	}

	if secondary == nil {
		secondary = e.RID
	}
	e.Change.Secondary = secondary
	return e, nil
}

func decodeBag(buf []byte) (BagValue, error) {
	var bv BagValue
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return bv, protowire.ParseError(n)
		}
		buf = buf[n:]

		switch {
		case num == bagNameField && typ == protowire.BytesType:
			bv.Name, n = protowire.ConsumeString(buf)
		case num == bagTreeField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(buf)
			bv.Tree = v != 0
		case num == bagPointerField && typ == protowire.VarintType:
			bv.Pointer, n = protowire.ConsumeVarint(buf)
		case num == bagSizeField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(buf)
			bv.Size = int(v)
		case num == bagEntryField && typ == protowire.BytesType:
			var eb []byte
			eb, n = protowire.ConsumeBytes(buf)
			if n >= 0 {
				e, err := decodeEntry(eb)
				if err != nil {
					return bv, err
				}
				bv.Entries = append(bv.Entries, e)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
		}
		if n < 0 {
			return bv, protowire.ParseError(n)
		}
		buf = buf[n:]
	}
	return bv, nil
}

func DecodeRecord(val []byte) ([]BagValue, error) {
	var bags []BagValue
	var format uint64
	for len(val) > 0 {
		num, typ, n := protowire.ConsumeTag(val)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		val = val[n:]

		switch {
		case num == recordFormatField && typ == protowire.VarintType:
			format, n = protowire.ConsumeVarint(val)
		case num == recordBagField && typ == protowire.BytesType:
			var bb []byte
			bb, n = protowire.ConsumeBytes(val)
			if n >= 0 {
				bv, err := decodeBag(bb)
				if err != nil {
					return nil, err
				}
				bags = append(bags, bv)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, val)
		}
		if n < 0 {
			return nil, fmt.Errorf("encode: record: %s", protowire.ParseError(n))
		}
		val = val[n:]
	}

	if format != recordFormat {
		return nil, fmt.Errorf("encode: record: unexpected format: %d", format)
	}
	return bags, nil
}
