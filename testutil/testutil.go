// Package testutil holds helpers shared by the tests of the storage and transaction packages.
package testutil

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// FileLineNumber identifies the test case which failed.
type FileLineNumber struct {
	File string
	Line int
}

func (fln FileLineNumber) String() string {
	if fln.File == "" || fln.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d: ", filepath.Base(fln.File), fln.Line)
}

// MakeFileLineNumber returns the location of the caller of the function which calls it; tests
// wrap it in a local fln() used when building their cases.
func MakeFileLineNumber() FileLineNumber {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return FileLineNumber{}
	}
	return FileLineNumber{File: file, Line: line}
}

// CleanDir removes the entries of dirname, other than keeps. A missing dirname is already
// clean.
func CleanDir(dirname string, keeps []string) error {
	fis, err := ioutil.ReadDir(dirname)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	for _, fi := range fis {
		if contains(keeps, fi.Name()) {
			continue
		}
		err = os.RemoveAll(filepath.Join(dirname, fi.Name()))
		if err != nil {
			return err
		}
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// DataDir returns an empty directory, testdata/name, for an on-disk store.
func DataDir(t *testing.T, name string) string {
	t.Helper()

	dataDir := filepath.Join("testdata", name)
	err := os.RemoveAll(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	err = os.MkdirAll(dataDir, 0755)
	if err != nil {
		t.Fatal(err)
	}
	return dataDir
}
