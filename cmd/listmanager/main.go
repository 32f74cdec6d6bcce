package main

import (
	"os"

	"list-manager/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
