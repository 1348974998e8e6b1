package repl_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/andreyvit/diff"

	"github.com/leftmike/linkbag/repl"
	"github.com/leftmike/linkbag/storage/bagstore"
	"github.com/leftmike/linkbag/storage/keyval"
	"github.com/leftmike/linkbag/txn"
)

func newSession(t *testing.T) *repl.Session {
	t.Helper()

	st, err := bagstore.Open(keyval.MakeBTreeKV())
	if err != nil {
		t.Fatalf("Open() failed with %s", err)
	}
	return &repl.Session{
		Store:   st,
		Options: txn.DefaultOptions(),
	}
}

func run(ses *repl.Session, script string) string {
	var b bytes.Buffer
	repl.Repl(context.Background(), ses, repl.NewReader(strings.NewReader(script)), &b)
	return b.String()
}

func TestRepl(t *testing.T) {
	ses := newSession(t)

	script := `// create a record
new 5 out
add #5:-1 out #9:1
add #5:-1 out #9:1
add #5:-1 out #9:2 #12:5
size #5:-1 out
count #5:-1 out #9:1
contains #5:-1 out #9:3
remove #5:-1 out #9:3
remove #5:-1 out #9:1
commit

begin
size #5:0 out
contains #5:0 out #9:2
begin
rollback
rollback
bogus
size #5:0
new x out
`
	want := `#5:-1
3
2
false
false
true
2
true
repl: transaction already started
repl: no transaction
repl: unknown command: bogus
repl: usage: size <record> <field>
repl: expected a cluster: x
`
	got := run(ses, script)
	if got != want {
		t.Errorf("Repl() got\n%s", diff.LineDiff(want, got))
	}
}

func TestReplTables(t *testing.T) {
	ses := newSession(t)

	out := run(ses, `new 5 out tree
add #5:-1 out #9:1
add #5:-1 out #9:2 #12:5
add #5:-1 out #9:3
commit
track #5:0 out
add #5:0 out #9:7
remove #5:0 out #9:1
changes #5:0 out reverse
list #5:0 out
undo #5:0 out
rollback
list #5:0 out
`)

	cases := []string{
		"#9:7",
		"#12:5",
		"(3 members)",
		"(0 new entries)",
	}
	for _, c := range cases {
		if !strings.Contains(out, c) {
			t.Errorf("Repl() output missing %q:\n%s", c, out)
		}
	}
	if strings.Count(out, "(3 members)") != 3 {
		t.Errorf("Repl() got\n%s", out)
	}
	if strings.Index(out, "#9:7") > strings.Index(out, "#9:1") {
		t.Errorf("Repl() changes not in reverse order:\n%s", out)
	}
}
