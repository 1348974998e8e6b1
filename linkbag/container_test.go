package linkbag_test

import (
	"testing"

	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/rid"
	"github.com/leftmike/linkbag/testutil"
)

func fln() testutil.FileLineNumber {
	return testutil.MakeFileLineNumber()
}

func ascendKeys(ctr linkbag.Container) []string {
	var keys []string
	ctr.Ascend(
		func(e linkbag.Entry) bool {
			keys = append(keys, e.RID.String())
			return true
		})
	return keys
}

func equalKeys(k1, k2 []string) bool {
	if len(k1) != len(k2) {
		return false
	}
	for idx := range k1 {
		if k1[idx] != k2[idx] {
			return false
		}
	}
	return true
}

func testContainer(t *testing.T, ctr linkbag.Container) {
	t.Helper()

	for _, s := range []string{"#5:9", "#5:1", "#3:7", "#5:5", "#7:0", "#5:3"} {
		r := rid.MustParse(s).(rid.RID)
		ctr.Put(r, linkbag.Change{Counter: 1, Secondary: r})
	}
	ver := ctr.Version()

	if ctr.Len() != 6 {
		t.Errorf("Len() got %d want 6", ctr.Len())
	}
	keys := ascendKeys(ctr)
	want := []string{"#3:7", "#5:1", "#5:3", "#5:5", "#5:9", "#7:0"}
	if !equalKeys(keys, want) {
		t.Errorf("Ascend() got %v want %v", keys, want)
	}

	r := rid.RID{Cluster: 5, Position: 5}
	c, ok := ctr.Get(r)
	if !ok || c.Counter != 1 {
		t.Errorf("Get(%s) got %v %v want 1 true", r, c, ok)
	}
	ctr.Put(r, linkbag.Change{Counter: 4, Secondary: r})
	c, ok = ctr.Get(r)
	if !ok || c.Counter != 4 {
		t.Errorf("Get(%s) got %v %v want 4 true", r, c, ok)
	}
	if ctr.Version() == ver {
		t.Errorf("Version() did not change after Put")
	}

	cases := []struct {
		fln  testutil.FileLineNumber
		r    rid.RID
		asc  []string
		desc []string
	}{
		{fln: fln(), r: rid.RID{Cluster: 5, Position: 3},
			asc: []string{"#5:5", "#5:9", "#7:0"}, desc: []string{"#5:3", "#5:1", "#3:7"}},
		{fln: fln(), r: rid.RID{Cluster: 5, Position: 4},
			asc: []string{"#5:5", "#5:9", "#7:0"}, desc: []string{"#5:3", "#5:1", "#3:7"}},
		{fln: fln(), r: rid.RID{Cluster: 1, Position: 1},
			asc: []string{"#3:7", "#5:1", "#5:3", "#5:5", "#5:9", "#7:0"}},
		{fln: fln(), r: rid.RID{Cluster: 7, Position: 0},
			desc: []string{"#7:0", "#5:9", "#5:5", "#5:3", "#5:1", "#3:7"}},
	}

	for _, c := range cases {
		var asc []string
		ctr.AscendAfter(c.r,
			func(e linkbag.Entry) bool {
				asc = append(asc, e.RID.String())
				return true
			})
		if !equalKeys(asc, c.asc) {
			t.Errorf("%sAscendAfter(%s) got %v want %v", c.fln, c.r, asc, c.asc)
		}

		var desc []string
		ctr.DescendFrom(c.r,
			func(e linkbag.Entry) bool {
				desc = append(desc, e.RID.String())
				return true
			})
		if !equalKeys(desc, c.desc) {
			t.Errorf("%sDescendFrom(%s) got %v want %v", c.fln, c.r, desc, c.desc)
		}
	}

	var first []string
	ctr.Ascend(
		func(e linkbag.Entry) bool {
			first = append(first, e.RID.String())
			return len(first) < 2
		})
	if !equalKeys(first, []string{"#3:7", "#5:1"}) {
		t.Errorf("Ascend() stop got %v", first)
	}

	ver = ctr.Version()
	if !ctr.Delete(rid.RID{Cluster: 5, Position: 1}) {
		t.Errorf("Delete(#5:1) got false want true")
	}
	if ctr.Delete(rid.RID{Cluster: 5, Position: 1}) {
		t.Errorf("Delete(#5:1) got true want false")
	}
	if ctr.Version() == ver {
		t.Errorf("Version() did not change after Delete")
	}
	if ctr.Len() != 5 {
		t.Errorf("Len() got %d want 5", ctr.Len())
	}

	ctr.Clear()
	if ctr.Len() != 0 {
		t.Errorf("Clear() left %d entries", ctr.Len())
	}
	if keys := ascendKeys(ctr); len(keys) != 0 {
		t.Errorf("Ascend() after Clear() got %v", keys)
	}
}

func TestArrayContainer(t *testing.T) {
	testContainer(t, linkbag.NewArrayContainer())
}

func TestTreeContainer(t *testing.T) {
	testContainer(t, linkbag.NewTreeContainer())
}

func TestParseContainerKind(t *testing.T) {
	for _, ck := range []linkbag.ContainerKind{linkbag.ArrayContainer, linkbag.TreeContainer} {
		pck, err := linkbag.ParseContainerKind(ck.String())
		if err != nil {
			t.Errorf("ParseContainerKind(%s) failed with %s", ck, err)
		} else if pck != ck {
			t.Errorf("ParseContainerKind(%s) got %s", ck, pck)
		}
	}
	_, err := linkbag.ParseContainerKind("list")
	if err == nil {
		t.Errorf("ParseContainerKind(list) did not fail")
	}
}
