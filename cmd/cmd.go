/*
Package cmd provides functionality shared by the counters binaries.
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// PrintError prints an error to stderr, prefixed in red.
func PrintError(err error) {
	FprintError(os.Stderr, err)
}

func FprintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", color.HiRedString("Error:"), err.Error())
}
