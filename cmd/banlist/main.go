package main

import (
	"os"

	"github.com/rbxmod/banlist/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
