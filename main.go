package main

import (
	"os"

	"github.com/leftmike/linkbag/cmd"
)

func main() {
	if cmd.Execute() != nil {
		os.Exit(1)
	}
}
