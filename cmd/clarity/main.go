package main

import (
	"os"

	"nda-clarity/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
