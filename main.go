package main

import (
	"github.com/sidkik/mcstage/cmd"
	"github.com/sidkik/mcstage/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
