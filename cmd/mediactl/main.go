// mediactl is the operator CLI for a gophermedia server.
package main

import (
	"os"

	"github.com/mtiwari1/gophermedia/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
