package linkbag

import (
	"github.com/leftmike/linkbag/rid"
)

// Change is the believed absolute multiplicity of one persistent key as modified by the
// current transaction, along with the secondary key of the member.
type Change struct {
	Counter   int
	Secondary rid.Ref
}

type Entry struct {
	RID    rid.RID
	Change Change
}

func (c *Change) increment(max int) bool {
	if c.Counter >= max {
		return false
	}
	c.Counter += 1
	return true
}

func (c *Change) decrement() bool {
	if c.Counter <= 0 {
		return false
	}
	c.Counter -= 1
	return true
}

func (e Entry) Pair() rid.Pair {
	return rid.MakePair(e.RID, e.Change.Secondary)
}
