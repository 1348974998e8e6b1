package rid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Ref identifies a collection member: either a persistent RID assigned by storage or a
// TempRID assigned by a session before the owning record is stored.
type Ref interface {
	fmt.Stringer
	IsPersistent() bool
	ref()
}

// RID is a persistent record identity.
type RID struct {
	Cluster  int32
	Position int64
}

// TempRID is a provisional record identity; Serial is always positive.
type TempRID struct {
	Cluster int32
	Serial  int64
}

// Rebind carries a temporary identity and the persistent identity replacing it.
type Rebind struct {
	Old TempRID
	New RID
}

var (
	MinRID = RID{Cluster: math.MinInt32, Position: math.MinInt64}
	MaxRID = RID{Cluster: math.MaxInt32, Position: math.MaxInt64}

	errBadRID = errors.New("rid: expected #<cluster>:<position>")
)

func (_ RID) ref()     {}
func (_ TempRID) ref() {}

func (_ RID) IsPersistent() bool {
	return true
}

func (_ TempRID) IsPersistent() bool {
	return false
}

func (r RID) String() string {
	return fmt.Sprintf("#%d:%d", r.Cluster, r.Position)
}

func (t TempRID) String() string {
	return fmt.Sprintf("#%d:-%d", t.Cluster, t.Serial)
}

func (r RID) Compare(r2 RID) int {
	if r.Cluster < r2.Cluster {
		return -1
	} else if r.Cluster > r2.Cluster {
		return 1
	}
	if r.Position < r2.Position {
		return -1
	} else if r.Position > r2.Position {
		return 1
	}
	return 0
}

func (r RID) Less(r2 RID) bool {
	return r.Compare(r2) < 0
}

func (t TempRID) Compare(t2 TempRID) int {
	if t.Serial < t2.Serial {
		return -1
	} else if t.Serial > t2.Serial {
		return 1
	}
	if t.Cluster < t2.Cluster {
		return -1
	} else if t.Cluster > t2.Cluster {
		return 1
	}
	return 0
}

// Compare orders persistent identities by cluster then position; temporary identities sort
// after every persistent identity, by serial. The order between the two kinds only makes
// iteration deterministic; it changes when a temporary identity is rebound.
func Compare(a, b Ref) int {
	switch a := a.(type) {
	case RID:
		switch b := b.(type) {
		case RID:
			return a.Compare(b)
		case TempRID:
			return -1
		}
	case TempRID:
		switch b := b.(type) {
		case RID:
			return 1
		case TempRID:
			return a.Compare(b)
		}
	}
	panic(fmt.Sprintf("rid: unexpected refs: %T and %T", a, b))
}

// Parse accepts #<cluster>:<position>; a negative position is a temporary identity.
func Parse(s string) (Ref, error) {
	if !strings.HasPrefix(s, "#") {
		return nil, errBadRID
	}
	ss := strings.SplitN(s[1:], ":", 2)
	if len(ss) != 2 {
		return nil, errBadRID
	}
	cluster, err := strconv.ParseInt(ss[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("rid: %s: bad cluster: %s", s, err)
	}
	pos, err := strconv.ParseInt(ss[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("rid: %s: bad position: %s", s, err)
	}
	if pos == math.MinInt64 {
		return nil, fmt.Errorf("rid: %s: bad position", s)
	} else if pos < 0 {
		return TempRID{Cluster: int32(cluster), Serial: -pos}, nil
	}
	return RID{Cluster: int32(cluster), Position: pos}, nil
}

func MustParse(s string) Ref {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}
