package encode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/leftmike/linkbag/rid"
)

const (
	// RecordsCollection holds the records and the meta keys; link entries are stored in
	// collections starting at FirstCollection.
	RecordsCollection = 0
	FirstCollection   = 1

	// Meta keys use reserved (negative) clusters in RecordsCollection.
	metaCluster     = math.MinInt32
	positionCluster = math.MinInt32 + 1

	EntryKeyLength = 8 + 4 + 8
)

const (
	VersionMeta = iota + 1
	NextCollectionMeta
)

func EncodeUint64(buf []byte, u uint64) []byte {
	return append(buf, byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32), byte(u>>24),
		byte(u>>16), byte(u>>8), byte(u))
}

func DecodeUint64(buf []byte) (uint64, bool) {
	if len(buf) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(buf), true
}

func encodeRID(buf []byte, r rid.RID) []byte {
	c := uint32(r.Cluster) ^ (1 << 31)
	buf = append(buf, byte(c>>24), byte(c>>16), byte(c>>8), byte(c))
	return EncodeUint64(buf, uint64(r.Position)^(1<<63))
}

func decodeRID(buf []byte) rid.RID {
	return rid.RID{
		Cluster:  int32(binary.BigEndian.Uint32(buf[:4]) ^ (1 << 31)),
		Position: int64(binary.BigEndian.Uint64(buf[4:12]) ^ (1 << 63)),
	}
}

// CollectionPrefix returns the prefix shared by every key in the collection.
func CollectionPrefix(coll uint64) []byte {
	return EncodeUint64(make([]byte, 0, EntryKeyLength), coll)
}

// EntryKey returns the key of r in the collection; keys sort in collection then RID order.
func EntryKey(coll uint64, r rid.RID) []byte {
	return encodeRID(CollectionPrefix(coll), r)
}

func DecodeEntryKey(key []byte) (uint64, rid.RID, error) {
	if len(key) != EntryKeyLength {
		return 0, rid.RID{}, fmt.Errorf("encode: entry key wrong length: %v", key)
	}
	return binary.BigEndian.Uint64(key[:8]), decodeRID(key[8:]), nil
}

func RecordKey(r rid.RID) []byte {
	if r.Cluster < 0 {
		panic(fmt.Sprintf("encode: record in reserved cluster: %s", r))
	}
	return EntryKey(RecordsCollection, r)
}

func MetaKey(meta int64) []byte {
	return EntryKey(RecordsCollection, rid.RID{Cluster: metaCluster, Position: meta})
}

// PositionKey holds the next position to allocate in cluster.
func PositionKey(cluster int32) []byte {
	return EntryKey(RecordsCollection,
		rid.RID{Cluster: positionCluster, Position: int64(cluster)})
}

// PositionPrefix is the prefix shared by the position keys of every cluster.
func PositionPrefix() []byte {
	key := EntryKey(RecordsCollection, rid.RID{Cluster: positionCluster})
	return key[:EntryKeyLength-8]
}

// IsPositionKey reports whether key is a PositionKey and, if so, for which cluster.
func IsPositionKey(key []byte) (int32, bool) {
	coll, r, err := DecodeEntryKey(key)
	if err != nil || coll != RecordsCollection || r.Cluster != positionCluster {
		return 0, false
	}
	return int32(r.Position), true
}
