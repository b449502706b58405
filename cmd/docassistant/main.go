// Command docassistant runs the document assistant server and its
// operational CLI (index maintenance, session inspection, user
// provisioning).
package main

import (
	"fmt"
	"os"

	"github.com/docassistant/docassistant/cmd/docassistant/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
