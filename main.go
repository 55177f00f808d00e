package main

import (
	"github.com/kestrelmoor/harvester-cli/cmd"
)

func main() {
	cmd.Execute()
}
