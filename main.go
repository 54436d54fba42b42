// Command tada is a checklist client for an Appwrite project.
//
// Run `tada auth login` once, then `tada ls`, `tada add`, or `tada ui` for
// the live list. The same binary is built from ./cmd/tada.
package main

import (
	"os"

	"github.com/Makepad-fr/tada/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
