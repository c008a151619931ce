package main

//go-build: CGO_ENABLED=0

import (
	"errors"
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/fable.go/pkg/bridge"
	fx "github.com/robotalks/fable.go/pkg/framework"
	"github.com/robotalks/fable.go/pkg/runtime"
	"github.com/robotalks/fable.go/pkg/sim"
)

func init() {
	runtime.SetupFlags()
	bridge.SetupFlags()
	sim.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	rt := runtime.NewConfig().MustNewRuntime()
	b := bridge.NewConfig().MustNewBridge(rt)
	rt.Loop.Add(b)
	glog.Infof("host %s started with %d modules", b.Config.HostID, len(rt.Modules()))

	err := fx.NewRunner().HandleSignals().
		Go(fx.NamedRun("runtime", rt)).
		Wait()
	if errors.Is(err, fx.ErrForcedExit) {
		glog.Warning("modules may not be released")
		glog.Flush()
		os.Exit(2)
	}
	if err != nil {
		glog.Exitln(err)
	}
}
