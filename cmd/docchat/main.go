// Command docchat chats with a language model about an uploaded document.
// It provides a CLI (via Cobra) and an HTTP server that streams answers
// over Server-Sent Events.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docchat-go/cmd/docchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
