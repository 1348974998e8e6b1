package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"
)

const (
	linkbagHistory = ".linkbag_history"
)

type lineReader struct {
	line *liner.State
}

func (lr lineReader) ReadLine() (string, error) {
	s, err := lr.line.Prompt("linkbag: ")
	if err == liner.ErrPromptAborted {
		return "", io.EOF
	} else if err != nil {
		return "", err
	}
	lr.line.AppendHistory(s)
	return s, nil
}

type scanReader struct {
	scanner *bufio.Scanner
}

// NewReader returns a LineReader which reads command lines from r.
func NewReader(r io.Reader) LineReader {
	return scanReader{bufio.NewScanner(r)}
}

func (sr scanReader) ReadLine() (string, error) {
	if !sr.scanner.Scan() {
		if err := sr.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return sr.scanner.Text(), nil
}

// Interact runs an interactive session on the console, keeping the command history in the
// current directory.
func Interact(ctx context.Context, ses *Session) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(linkbagHistory); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	Repl(ctx, ses, lineReader{line}, os.Stdout)

	if f, err := os.Create(linkbagHistory); err != nil {
		fmt.Fprintf(os.Stderr, "linkbag: error writing history file, %s: %s", linkbagHistory,
			err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
}
