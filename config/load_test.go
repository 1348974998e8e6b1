package config

import (
	"flag"
	"strings"
	"testing"
)

func newConfig(bv bool, i64v int64, sv string) (*Config, *bool, *int64, *string) {
	c := NewConfig(flag.NewFlagSet("test", flag.PanicOnError))
	c.Var(new(int), "good").Int(0)
	c.Var(new(int), "fixed").NoConfig().Int(0)
	b := c.Var(new(bool), "bool_var").Bool(bv)
	i64 := c.Var(new(int64), "int64_var").Int64(i64v)
	s := c.Var(new(string), "string-var").String(sv)
	return c, b, i64, s
}

func TestLoadSimple(t *testing.T) {
	cases := []struct {
		bv, be     bool
		i64v, i64e int64
		sv, se     string
		fail       bool
		cfg        string
	}{
		{fail: true, cfg: `good`},
		{fail: true, cfg: `good=`},
		{fail: true, cfg: `good =`},
		{fail: true, cfg: `bad = 123`},
		{fail: true, cfg: `fixed = 123`},
		{cfg: `good=123`},
		{cfg: `/* comment */ good = 123 // comment`},
		{cfg: `"good" = 1234`},

		{bv: false, be: true, cfg: `bool_var = true`},
		{bv: true, be: false, cfg: `bool_var = false`},
		{fail: true, cfg: `bool_var = 1234`},
		{i64v: 1234, i64e: -5678, cfg: `int64_var = -5678`},
		{fail: true, cfg: `int64_var = "a string"`},
		{sv: "", se: "a string", cfg: `string-var = "a string"`},
		{fail: true, cfg: `string-var = 1234`},
		{bv: true, be: false, i64v: 1, i64e: 2, sv: "abc", se: "def",
			cfg: `
bool_var = false
int64_var = 2
string-var = "def"
`},
	}

	for i, tc := range cases {
		c, b, i64, s := newConfig(tc.bv, tc.i64v, tc.sv)
		if *b != tc.bv || *i64 != tc.i64v || *s != tc.sv {
			t.Errorf("NewConfig(%d) defaults not correctly set", i)
		}
		err := c.Load(strings.NewReader(tc.cfg))
		if tc.fail {
			if err == nil {
				t.Errorf("Load(%q) did not fail", tc.cfg)
			}
		} else {
			if err != nil {
				t.Errorf("Load(%q) failed with %s", tc.cfg, err)
			} else if *b != tc.be || *i64 != tc.i64e || *s != tc.se {
				t.Errorf("Load(%q) variables not updated correctly", tc.cfg)
			}
		}
	}
}

func TestLoadPrecedence(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := NewConfig(fs)
	i := c.Var(new(int), "int").Int(1)
	s := c.Var(new(string), "string").String("default")

	err := fs.Parse([]string{"-int=2"})
	if err != nil {
		t.Fatalf("fs.Parse() failed with %s", err)
	}
	err = c.Load(strings.NewReader(`
int = 3
string = "config"
`))
	if err != nil {
		t.Fatalf("Load() failed with %s", err)
	}
	if *i != 2 {
		t.Errorf("Load() got %d want 2", *i)
	}
	if *s != "config" {
		t.Errorf("Load() got %q want \"config\"", *s)
	}
	if c.vars["string"].by != ByConfig || c.vars["int"].by != ByFlag {
		t.Errorf("Load() got %s and %s", c.vars["string"].by, c.vars["int"].by)
	}
}

func TestLoadChoices(t *testing.T) {
	cases := []struct {
		cfg  string
		want string
		fail bool
	}{
		{cfg: `container = "tree"`, want: "tree"},
		{cfg: `container = "array"`, want: "array"},
		{cfg: `container = "list"`, fail: true},
		{cfg: `container = 1`, fail: true},
	}

	for _, tc := range cases {
		c := NewConfig(flag.NewFlagSet("test", flag.ContinueOnError))
		s := c.Var(new(string), "container").Choices("array", "tree").String("array")
		err := c.Load(strings.NewReader(tc.cfg))
		if tc.fail {
			if err == nil {
				t.Errorf("Load(%q) did not fail", tc.cfg)
			}
		} else if err != nil {
			t.Errorf("Load(%q) failed with %s", tc.cfg, err)
		} else if *s != tc.want {
			t.Errorf("Load(%q) got %q want %q", tc.cfg, *s, tc.want)
		}
	}
}
