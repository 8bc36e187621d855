package main

import (
	"os"

	"github.com/CybrosysAssista/Assista-IDE/cli"
)

func main() {
	os.Exit(cli.Execute())
}
