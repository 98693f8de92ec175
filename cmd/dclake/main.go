package main

import (
	"os"

	"dclake/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
