package cmd

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andreyvit/diff"

	"github.com/leftmike/linkbag/rid"
	"github.com/leftmike/linkbag/storage/bagstore"
	"github.com/leftmike/linkbag/storage/keyval"
	"github.com/leftmike/linkbag/testutil"
	"github.com/leftmike/linkbag/txn"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var b bytes.Buffer
	linkbagCmd.SetOutput(&b)
	linkbagCmd.SetArgs(append(args, "--no-config",
		"--log-file", filepath.Join("testdata", "cmd.log")))
	err := linkbagCmd.Execute()
	if err != nil {
		t.Fatalf("Execute(%v) failed with %s", args, err)
	}
	return b.String()
}

func populate(t *testing.T, dataDir string) {
	t.Helper()

	kv, err := keyval.Open("bbolt", dataDir, nil)
	if err != nil {
		t.Fatalf("Open() failed with %s", err)
	}
	st, err := bagstore.Open(kv)
	if err != nil {
		t.Fatalf("Open() failed with %s", err)
	}
	defer st.Close()

	ctx := context.Background()
	tx := txn.Begin(st, txn.DefaultOptions())
	rec, err := tx.NewRecord(5)
	if err != nil {
		t.Fatalf("NewRecord() failed with %s", err)
	}
	b := tx.NewEmbeddedBag()
	err = tx.SetBag(rec, "out", b)
	if err != nil {
		t.Fatalf("SetBag() failed with %s", err)
	}
	for _, k := range []string{"#9:1", "#9:1", "#9:2"} {
		err = b.Add(ctx, rid.MustParse(k), nil)
		if err != nil {
			t.Fatalf("Add() failed with %s", err)
		}
	}
	err = tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}
	if rec.ID().String() != "#5:0" {
		t.Fatalf("Commit() got %s want #5:0", rec.ID())
	}
}

func TestCommands(t *testing.T) {
	err := testutil.CleanDir("testdata", []string{".gitignore"})
	if err != nil {
		t.Fatal(err)
	}
	dataDir := filepath.Join("testdata", "store")
	populate(t, dataDir)

	got := execute(t, "version")
	want := version + "\n"
	if got != want {
		t.Errorf("Execute(version) got\n%s", diff.LineDiff(want, got))
	}

	got = execute(t, "list", "--store", "bbolt", "--data", dataDir, "#5:0", "out")
	for _, s := range []string{"#9:1", "#9:2", "(3 members)"} {
		if !strings.Contains(got, s) {
			t.Errorf("Execute(list) output missing %q:\n%s", s, got)
		}
	}

	script := filepath.Join("testdata", "script.lb")
	err = ioutil.WriteFile(script, []byte(`add #5:0 out #9:3
size #5:0 out
commit
count #5:0 out #9:1
`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	got = execute(t, "repl", "--store", "bbolt", "--data", dataDir, script)
	want = "4\n2\n"
	if got != want {
		t.Errorf("Execute(repl) got\n%s", diff.LineDiff(want, got))
	}

	got = execute(t, "config", "--counter-max", "7")
	if !strings.Contains(got, "counter-max") || !strings.Contains(got, "flag") {
		t.Errorf("Execute(config) got\n%s", got)
	}
}
