package rid_test

import (
	"math"
	"testing"

	"github.com/leftmike/linkbag/rid"
)

func TestParse(t *testing.T) {
	cases := []struct {
		s    string
		r    rid.Ref
		fail bool
	}{
		{s: "#12:5", r: rid.RID{Cluster: 12, Position: 5}},
		{s: "#0:0", r: rid.RID{Cluster: 0, Position: 0}},
		{s: "#-1:7", r: rid.RID{Cluster: -1, Position: 7}},
		{s: "#12:-3", r: rid.TempRID{Cluster: 12, Serial: 3}},
		{s: "12:5", fail: true},
		{s: "#12", fail: true},
		{s: "#a:5", fail: true},
		{s: "#12:b", fail: true},
		{s: "#99999999999:1", fail: true},
		{s: "#1:-9223372036854775807", r: rid.TempRID{Cluster: 1, Serial: math.MaxInt64}},
		{s: "#1:-9223372036854775808", fail: true},
	}

	for _, c := range cases {
		r, err := rid.Parse(c.s)
		if c.fail {
			if err == nil {
				t.Errorf("Parse(%q) did not fail", c.s)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) failed with %s", c.s, err)
		} else if r != c.r {
			t.Errorf("Parse(%q) got %v want %v", c.s, r, c.r)
		} else if r.String() != c.s {
			t.Errorf("Parse(%q).String() got %s", c.s, r.String())
		}
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		cmp  int
	}{
		{"#1:1", "#1:1", 0},
		{"#1:1", "#1:2", -1},
		{"#1:9", "#2:0", -1},
		{"#3:0", "#2:100", 1},
		{"#1:-1", "#1:-2", -1},
		{"#9:-1", "#1:-1", 1},
		{"#100:100", "#1:-1", -1},
		{"#1:-1", "#100:100", 1},
	}

	for _, c := range cases {
		cmp := rid.Compare(rid.MustParse(c.a), rid.MustParse(c.b))
		if cmp != c.cmp {
			t.Errorf("Compare(%s, %s) got %d want %d", c.a, c.b, cmp, c.cmp)
		}
	}

	if rid.MinRID.Compare(rid.RID{}) >= 0 || rid.MaxRID.Compare(rid.RID{}) <= 0 {
		t.Errorf("MinRID and MaxRID do not bound the zero RID")
	}
}

func TestPair(t *testing.T) {
	a := rid.RID{Cluster: 5, Position: 1}
	b := rid.RID{Cluster: 6, Position: 2}

	p := rid.MakePair(a, nil)
	if p.Secondary != a || p.IsLightweight() {
		t.Errorf("MakePair(%s, nil) got %v", a, p)
	}
	if p.String() != "#5:1" {
		t.Errorf("MakePair(%s, nil).String() got %s", a, p.String())
	}

	p2 := rid.MakePair(a, b)
	if !p2.IsLightweight() || p2.String() != "#5:1->#6:2" {
		t.Errorf("MakePair(%s, %s) got %s", a, b, p2)
	}
	if p.Compare(p2) != 0 {
		t.Errorf("pairs with the same primary do not compare equal")
	}
	if rid.MakePair(b, a).Compare(p) <= 0 {
		t.Errorf("pairs are not ordered by primary")
	}
}
