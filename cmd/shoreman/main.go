package main

import (
	"os"

	"github.com/charliek/shoreman/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
