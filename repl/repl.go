// Package repl runs line oriented commands against link bags in a store.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/linkbag/linkbag"
	"github.com/leftmike/linkbag/record"
	"github.com/leftmike/linkbag/rid"
	"github.com/leftmike/linkbag/storage/bagstore"
	"github.com/leftmike/linkbag/txn"
)

// LineReader returns one command line at a time; it returns io.EOF when there are no more.
type LineReader interface {
	ReadLine() (string, error)
}

type Session struct {
	Store   *bagstore.Store
	Options txn.Options

	tx *txn.Transaction
}

type command struct {
	args  string
	usage string
	min   int
	max   int
	fn    func(ctx context.Context, ses *Session, w io.Writer, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"begin": {
			usage: "start a transaction",
			fn:    beginCmd,
		},
		"new": {
			args:  "<cluster> <field> [embedded | tree]",
			usage: "create a record with an empty bag field",
			min:   2,
			max:   3,
			fn:    newCmd,
		},
		"add": {
			args:  "<record> <field> <member> [<secondary>]",
			usage: "add one unit of member",
			min:   3,
			max:   4,
			fn:    addCmd,
		},
		"remove": {
			args:  "<record> <field> <member>",
			usage: "remove one unit of member",
			min:   3,
			max:   3,
			fn:    removeCmd,
		},
		"contains": {
			args:  "<record> <field> <member>",
			usage: "print whether member is in the bag",
			min:   3,
			max:   3,
			fn:    containsCmd,
		},
		"count": {
			args:  "<record> <field> <member>",
			usage: "print the multiplicity of member",
			min:   3,
			max:   3,
			fn:    countCmd,
		},
		"size": {
			args:  "<record> <field>",
			usage: "print the number of members",
			min:   2,
			max:   2,
			fn:    sizeCmd,
		},
		"list": {
			args:  "<record> <field>",
			usage: "list the members with their counts",
			min:   2,
			max:   2,
			fn:    listCmd,
		},
		"changes": {
			args:  "<record> <field> [reverse]",
			usage: "list the pending changes",
			min:   2,
			max:   3,
			fn:    changesCmd,
		},
		"track": {
			args:  "<record> <field>",
			usage: "record a timeline of changes to the bag",
			min:   2,
			max:   2,
			fn:    trackCmd,
		},
		"undo": {
			args:  "<record> <field>",
			usage: "list the members as they were before the tracked changes",
			min:   2,
			max:   2,
			fn:    undoCmd,
		},
		"commit": {
			usage: "commit the transaction",
			fn:    commitCmd,
		},
		"rollback": {
			usage: "roll back the transaction",
			fn:    rollbackCmd,
		},
	}
}

// Repl runs each command line from lr until io.EOF. Errors are written to w and do not stop
// the session.
func Repl(ctx context.Context, ses *Session, lr LineReader, w io.Writer) {
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			break
		} else if err != nil {
			fmt.Fprintln(w, err)
			break
		}

		err = ses.Execute(ctx, w, line)
		if err != nil {
			fmt.Fprintln(w, err)
		}
	}

	if ses.tx != nil {
		ses.tx.Rollback()
		ses.tx = nil
	}
}

// Execute runs a single command line.
func (ses *Session) Execute(ctx context.Context, w io.Writer, line string) error {
	if strings.HasPrefix(line, "//") {
		return nil
	}
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	if args[0] == "help" {
		help(w)
		return nil
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("repl: unknown command: %s", name)
	}
	args = args[1:]
	if len(args) < cmd.min || len(args) > cmd.max {
		return fmt.Errorf("repl: usage: %s %s", name, cmd.args)
	}

	log.WithField("command", line).Debug("repl: execute")
	return cmd.fn(ctx, ses, w, args)
}

func help(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"command", "description"})
	for _, name := range []string{"begin", "new", "add", "remove", "contains", "count", "size",
		"list", "changes", "track", "undo", "commit", "rollback"} {

		cmd := commands[name]
		tw.Append([]string{strings.TrimSpace(name + " " + cmd.args), cmd.usage})
	}
	tw.Render()
}

func (ses *Session) transaction() *txn.Transaction {
	if ses.tx == nil {
		ses.tx = txn.Begin(ses.Store, ses.Options)
	}
	return ses.tx
}

func (ses *Session) bag(ctx context.Context, id, field string) (*record.Record, *linkbag.Bag,
	error) {

	r, err := rid.Parse(id)
	if err != nil {
		return nil, nil, err
	}
	rec, err := ses.transaction().Load(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	b, ok := rec.Bag(field)
	if !ok {
		return nil, nil, fmt.Errorf("repl: record %s: field %s not found", rec, field)
	}
	return rec, b, nil
}

func beginCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	if ses.tx != nil {
		return errors.New("repl: transaction already started")
	}
	ses.transaction()
	return nil
}

func newCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	cluster, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil || cluster < 0 {
		return fmt.Errorf("repl: expected a cluster: %s", args[0])
	}
	tree := false
	if len(args) == 3 {
		switch args[2] {
		case "embedded":
		case "tree":
			tree = true
		default:
			return fmt.Errorf("repl: expected embedded or tree: %s", args[2])
		}
	}

	tx := ses.transaction()
	rec, err := tx.NewRecord(int32(cluster))
	if err != nil {
		return err
	}
	b := tx.NewEmbeddedBag()
	if tree {
		b = tx.NewTreeBag()
	}
	err = tx.SetBag(rec, args[1], b)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, rec)
	return nil
}

func addCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	member, err := rid.Parse(args[2])
	if err != nil {
		return err
	}
	var secondary rid.Ref
	if len(args) == 4 {
		secondary, err = rid.Parse(args[3])
		if err != nil {
			return err
		}
	}
	return b.Add(ctx, member, secondary)
}

func removeCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	member, err := rid.Parse(args[2])
	if err != nil {
		return err
	}
	ok, err := b.Remove(ctx, member)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, ok)
	return nil
}

func containsCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	member, err := rid.Parse(args[2])
	if err != nil {
		return err
	}
	ok, err := b.Contains(ctx, member)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, ok)
	return nil
}

func countCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	member, err := rid.Parse(args[2])
	if err != nil {
		return err
	}
	cnt, err := b.Count(ctx, member)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, cnt)
	return nil
}

func sizeCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(w, b.Size())
	return nil
}

// WriteMembers writes a table of the members of pairs; consecutive repeats of a member are
// written once with their count.
func WriteMembers(w io.Writer, pairs []rid.Pair) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"member", "secondary", "count"})

	for idx := 0; idx < len(pairs); {
		cnt := 1
		for idx+cnt < len(pairs) && pairs[idx+cnt] == pairs[idx] {
			cnt += 1
		}
		p := pairs[idx]
		tw.Append([]string{p.Primary.String(), p.Secondary.String(), strconv.Itoa(cnt)})
		idx += cnt
	}
	tw.Render()
	fmt.Fprintf(w, "(%d members)\n", len(pairs))
}

func listCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	pairs, err := b.Members(ctx)
	if err != nil {
		return err
	}
	WriteMembers(w, pairs)
	return nil
}

func changesCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"key", "counter", "secondary"})
	fn := func(e linkbag.Entry) bool {
		tw.Append([]string{e.RID.String(), strconv.Itoa(e.Change.Counter),
			e.Change.Secondary.String()})
		return true
	}
	if len(args) == 3 {
		if args[2] != "reverse" {
			return fmt.Errorf("repl: expected reverse: %s", args[2])
		}
		b.ChangesFrom(rid.MaxRID, fn)
	} else {
		b.Changes(fn)
	}
	tw.Render()
	fmt.Fprintf(w, "(%d new entries)\n", b.NewEntries())
	return nil
}

func trackCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	b.EnableTracking()
	return nil
}

func undoCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	_, b, err := ses.bag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	nb, err := b.Rollback(ctx)
	if err != nil {
		return err
	}
	pairs, err := nb.Members(ctx)
	if err != nil {
		return err
	}
	WriteMembers(w, pairs)
	return nil
}

func commitCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	if ses.tx == nil {
		return errors.New("repl: no transaction")
	}
	tx := ses.tx
	ses.tx = nil
	return tx.Commit(ctx)
}

func rollbackCmd(ctx context.Context, ses *Session, w io.Writer, args []string) error {
	if ses.tx == nil {
		return errors.New("repl: no transaction")
	}
	tx := ses.tx
	ses.tx = nil
	return tx.Rollback()
}
