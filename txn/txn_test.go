package txn_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/record"
	"github.com/leftmike/linkbag/rid"
	"github.com/leftmike/linkbag/storage/bagstore"
	"github.com/leftmike/linkbag/storage/keyval"
	"github.com/leftmike/linkbag/testutil"
	"github.com/leftmike/linkbag/txn"
)

func openStore(t *testing.T) *bagstore.Store {
	t.Helper()

	st, err := bagstore.Open(keyval.MakeBTreeKV())
	if err != nil {
		t.Fatalf("Open() failed with %s", err)
	}
	return st
}

func members(t *testing.T, b *linkbag.Bag) []string {
	t.Helper()

	pairs, err := b.Members(context.Background())
	if err != nil {
		t.Fatalf("Members() failed with %s", err)
	}
	var got []string
	for _, p := range pairs {
		got = append(got, p.String())
	}
	return got
}

func equalStrings(s1, s2 []string) bool {
	if len(s1) != len(s2) {
		return false
	}
	for idx := range s1 {
		if s1[idx] != s2[idx] {
			return false
		}
	}
	return true
}

func newRecord(t *testing.T, tx *txn.Transaction, cluster int32, tree bool) (*record.Record,
	*linkbag.Bag) {

	t.Helper()

	rec, err := tx.NewRecord(cluster)
	if err != nil {
		t.Fatalf("NewRecord() failed with %s", err)
	}
	b := tx.NewEmbeddedBag()
	if tree {
		b = tx.NewTreeBag()
	}
	err = tx.SetBag(rec, "out", b)
	if err != nil {
		t.Fatalf("SetBag() failed with %s", err)
	}
	return rec, b
}

func loadBag(t *testing.T, tx *txn.Transaction, id rid.Ref) *linkbag.Bag {
	t.Helper()

	rec, err := tx.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load(%s) failed with %s", id, err)
	}
	b, ok := rec.Bag("out")
	if !ok {
		t.Fatalf("Load(%s) missing field out", id)
	}
	return b
}

func add(t *testing.T, b *linkbag.Bag, keys ...string) {
	t.Helper()

	for _, k := range keys {
		err := b.Add(context.Background(), rid.MustParse(k), nil)
		if err != nil {
			t.Fatalf("Add(%s) failed with %s", k, err)
		}
	}
}

func TestCommit(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	tx := txn.Begin(st, txn.DefaultOptions())
	target, err := tx.NewRecord(7)
	if err != nil {
		t.Fatalf("NewRecord() failed with %s", err)
	}
	rec, b := newRecord(t, tx, 5, false)
	add(t, b, "#9:1", "#9:1", "#3:4")
	err = b.Add(ctx, target.ID(), nil)
	if err != nil {
		t.Fatalf("Add() failed with %s", err)
	}
	if rec.ID().IsPersistent() {
		t.Errorf("NewRecord() got persistent %s", rec.ID())
	}

	err = tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}
	if !rec.ID().IsPersistent() || !target.ID().IsPersistent() {
		t.Fatalf("Commit() did not rebind %s and %s", rec.ID(), target.ID())
	}
	if b.IsDirty() {
		t.Errorf("Commit() left bag dirty")
	}
	if tx.Commit(ctx) != txn.ErrTransactionComplete {
		t.Errorf("Commit() after Commit() did not fail")
	}

	want := []string{"#3:4", "#7:0", "#9:1", "#9:1"}
	got := members(t, b)
	if !equalStrings(got, want) {
		t.Errorf("Members() got %v want %v", got, want)
	}

	tx = txn.Begin(st, txn.DefaultOptions())
	lb := loadBag(t, tx, rec.ID())
	if lb.Mode() != linkbag.Embedded || lb.Size() != 4 {
		t.Errorf("Load() got mode %d size %d", lb.Mode(), lb.Size())
	}
	got = members(t, lb)
	if !equalStrings(got, want) {
		t.Errorf("Members() got %v want %v", got, want)
	}

	_, err = tx.Load(ctx, rid.RID{Cluster: 5, Position: 100})
	if !errors.Is(err, txn.ErrRecordNotFound) {
		t.Errorf("Load() got %v want %s", err, txn.ErrRecordNotFound)
	}
	err = tx.Rollback()
	if err != nil {
		t.Errorf("Rollback() failed with %s", err)
	}
}

func TestTemporaryKey(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	tx := txn.Begin(st, txn.DefaultOptions())
	_, b := newRecord(t, tx, 5, false)
	err := b.Add(ctx, rid.TempRID{Cluster: 4, Serial: 99}, nil)
	if err != nil {
		t.Fatalf("Add() failed with %s", err)
	}
	err = tx.Commit(ctx)
	if !errors.Is(err, linkbag.ErrTemporaryKey) {
		t.Errorf("Commit() got %v want %s", err, linkbag.ErrTemporaryKey)
	}
}

func TestTreeBag(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	tx := txn.Begin(st, txn.DefaultOptions())
	rec, b := newRecord(t, tx, 5, true)
	add(t, b, "#9:3", "#9:1", "#9:2", "#9:1")
	err := tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}
	if b.Pointer() == (linkbag.Pointer{}) {
		t.Fatalf("Commit() left zero pointer")
	}

	tx = txn.Begin(st, txn.DefaultOptions())
	lb := loadBag(t, tx, rec.ID())
	if lb.Mode() != linkbag.TreeBacked || lb.Size() != 4 || lb.Pointer() != b.Pointer() {
		t.Fatalf("Load() got mode %d size %d pointer %v", lb.Mode(), lb.Size(), lb.Pointer())
	}
	ok, err := lb.Remove(ctx, rid.MustParse("#9:1"))
	if err != nil || !ok {
		t.Fatalf("Remove() got %v, %v", ok, err)
	}
	add(t, lb, "#9:0")
	err = tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	tx = txn.Begin(st, txn.DefaultOptions())
	lb = loadBag(t, tx, rec.ID())
	want := []string{"#9:0", "#9:1", "#9:2", "#9:3"}
	got := members(t, lb)
	if !equalStrings(got, want) || lb.Size() != 4 {
		t.Errorf("Members() got %v want %v", got, want)
	}
}

func TestConversion(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	opts := txn.DefaultOptions()
	opts.EmbeddedToTree = 3
	opts.TreeToEmbedded = 2

	tx := txn.Begin(st, opts)
	rec, b := newRecord(t, tx, 5, false)
	add(t, b, "#9:1", "#9:2", "#9:3", "#9:4")
	err := tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	tx = txn.Begin(st, opts)
	lb := loadBag(t, tx, rec.ID())
	if lb.Mode() != linkbag.TreeBacked || lb.Size() != 4 {
		t.Fatalf("Load() got mode %d size %d", lb.Mode(), lb.Size())
	}
	ptr := lb.Pointer()
	for _, k := range []string{"#9:1", "#9:2", "#9:4"} {
		_, err = lb.Remove(ctx, rid.MustParse(k))
		if err != nil {
			t.Fatalf("Remove(%s) failed with %s", k, err)
		}
	}
	err = tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	tx = txn.Begin(st, opts)
	lb = loadBag(t, tx, rec.ID())
	if lb.Mode() != linkbag.Embedded || lb.Size() != 1 {
		t.Fatalf("Load() got mode %d size %d", lb.Mode(), lb.Size())
	}
	got := members(t, lb)
	if !equalStrings(got, []string{"#9:3"}) {
		t.Errorf("Members() got %v", got)
	}

	// The tree of the converted bag is gone.
	sc, err := st.Scan(ctx, ptr, st.Snapshot(), rid.MinRID, rid.MaxRID)
	if err != nil {
		t.Fatalf("Scan() failed with %s", err)
	}
	defer sc.Close()
	err = sc.Item(func(e linkbag.Entry) error { return nil })
	if err == nil {
		t.Errorf("Scan() of deleted tree found entries")
	}
}

func TestConflict(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	tx := txn.Begin(st, txn.DefaultOptions())
	rec, b := newRecord(t, tx, 5, false)
	add(t, b, "#9:1")
	err := tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	cases := []struct {
		fln testutil.FileLineNumber
		fn  func(b *linkbag.Bag) error
	}{
		{
			fln: fln(),
			fn: func(b *linkbag.Bag) error {
				return b.Add(ctx, rid.MustParse("#9:2"), nil)
			},
		},
		// Removing a missing member does not change the bag but still conflicts.
		{
			fln: fln(),
			fn: func(b *linkbag.Bag) error {
				_, err := b.Remove(ctx, rid.MustParse("#9:8"))
				return err
			},
		},
	}

	for _, c := range cases {
		tx1 := txn.Begin(st, txn.DefaultOptions())
		tx2 := txn.Begin(st, txn.DefaultOptions())
		b1 := loadBag(t, tx1, rec.ID())
		b2 := loadBag(t, tx2, rec.ID())

		add(t, b1, "#9:3")
		err = c.fn(b2)
		if err != nil {
			t.Fatalf("%sfn() failed with %s", c.fln, err)
		}

		err = tx1.Commit(ctx)
		if err != nil {
			t.Fatalf("%sCommit() failed with %s", c.fln, err)
		}
		err = tx2.Commit(ctx)
		if err != bagstore.ErrConflict {
			t.Errorf("%sCommit() got %v want %s", c.fln, err, bagstore.ErrConflict)
		}
		if b2.IsDirty() {
			t.Errorf("%sCommit() failed but left bag dirty", c.fln)
		}
	}
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	tx := txn.Begin(st, txn.DefaultOptions())
	rec, b := newRecord(t, tx, 5, false)
	add(t, b, "#9:1")
	err := tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	snap := st.Snapshot()
	tx = txn.Begin(st, txn.DefaultOptions())
	lb := loadBag(t, tx, rec.ID())
	add(t, lb, "#9:2", "#9:3")
	err = tx.Rollback()
	if err != nil {
		t.Fatalf("Rollback() failed with %s", err)
	}
	if lb.Size() != 1 || lb.IsDirty() {
		t.Errorf("Rollback() got size %d dirty %v", lb.Size(), lb.IsDirty())
	}
	if st.Snapshot() != snap {
		t.Errorf("Rollback() wrote version %d", st.Snapshot())
	}
	if tx.Rollback() != txn.ErrTransactionComplete {
		t.Errorf("Rollback() after Rollback() did not fail")
	}
	_, err = tx.NewRecord(5)
	if err != txn.ErrTransactionComplete {
		t.Errorf("NewRecord() got %v want %s", err, txn.ErrTransactionComplete)
	}
}

func TestOwnerAcrossTransactions(t *testing.T) {
	st := openStore(t)

	tx1 := txn.Begin(st, txn.DefaultOptions())
	rec1, b := newRecord(t, tx1, 5, false)

	tx2 := txn.Begin(st, txn.DefaultOptions())
	rec2, err := tx2.NewRecord(5)
	if err != nil {
		t.Fatalf("NewRecord() failed with %s", err)
	}
	if rec2.Handle() == rec1.Handle() {
		t.Errorf("NewRecord() got handle %d in both transactions", rec2.Handle())
	}
	err = tx2.SetBag(rec2, "other", b)
	if !errors.Is(err, linkbag.ErrOwnerConflict) {
		t.Errorf("SetBag() got %v want %s", err, linkbag.ErrOwnerConflict)
	}
	if b.Owner() != rec1.Handle() {
		t.Errorf("Owner() got %d want %d", b.Owner(), rec1.Handle())
	}
	if _, ok := rec2.Bag("other"); ok {
		t.Errorf("SetBag() set field other after failing")
	}
}

func TestDeleteRecord(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	tx := txn.Begin(st, txn.DefaultOptions())
	rec, b := newRecord(t, tx, 5, true)
	add(t, b, "#9:1", "#9:2")
	err := tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	tx = txn.Begin(st, txn.DefaultOptions())
	dr, err := tx.Load(ctx, rec.ID())
	if err != nil {
		t.Fatalf("Load() failed with %s", err)
	}
	tx.DeleteRecord(dr)
	err = tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	tx = txn.Begin(st, txn.DefaultOptions())
	_, err = tx.Load(ctx, rec.ID())
	if !errors.Is(err, txn.ErrRecordNotFound) {
		t.Errorf("Load() got %v want %s", err, txn.ErrRecordNotFound)
	}
}

func TestConcurrent(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	testutil.SetupLogger(filepath.Join("testdata", "concurrent.log"))

	tx := txn.Begin(st, txn.DefaultOptions())
	rec, _ := newRecord(t, tx, 5, true)
	err := tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	const workers = 8
	var conflicts int64
	var g errgroup.Group
	for w := 0; w < workers; w += 1 {
		pos := int64(w)
		g.Go(func() error {
			for {
				tx := txn.Begin(st, txn.DefaultOptions())
				r, err := tx.Load(ctx, rec.ID())
				if err != nil {
					return err
				}
				b, _ := r.Bag("out")
				err = b.Add(ctx, rid.RID{Cluster: 9, Position: pos}, nil)
				if err != nil {
					return err
				}
				err = tx.Commit(ctx)
				if err == bagstore.ErrConflict {
					atomic.AddInt64(&conflicts, 1)
					continue
				}
				return err
			}
		})
	}
	err = g.Wait()
	if err != nil {
		t.Fatalf("Wait() failed with %s", err)
	}

	tx = txn.Begin(st, txn.DefaultOptions())
	b := loadBag(t, tx, rec.ID())
	if b.Size() != workers {
		t.Errorf("Size() got %d want %d (%d conflicts)", b.Size(), workers,
			atomic.LoadInt64(&conflicts))
	}
	got := members(t, b)
	if len(got) != workers {
		t.Errorf("Members() got %v", got)
	}
}

func fln() testutil.FileLineNumber {
	return testutil.MakeFileLineNumber()
}
