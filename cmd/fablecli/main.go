package main

import (
	"github.com/robotalks/fable.go/pkg/cli/sh"
	"github.com/robotalks/fable.go/pkg/runtime"
	"github.com/robotalks/fable.go/pkg/sim"
)

//go-build: CGO_ENABLED=0

func init() {
	runtime.SetupFlags()
	sim.SetupFlags()
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
