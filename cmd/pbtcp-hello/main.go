// Command pbtcp-hello serves and calls the hello world sample service.
//
//	pbtcp-hello serve --port 5556
//	pbtcp-hello call --address tcp://localhost:5556 Joe
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommandeer().cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
