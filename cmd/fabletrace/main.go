package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/robotalks/fable.go/pkg/trace"
)

var (
	session string
	errOnly bool
)

func init() {
	flag.StringVar(&session, "session", session, "Only print events of the session.")
	flag.BoolVar(&errOnly, "errors", errOnly, "Only print failed exchanges.")
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatalln("trace file expected")
	}
	for _, path := range flag.Args() {
		if err := dump(path); err != nil {
			log.Fatalf("%s: %v", path, err)
		}
	}
}

func dump(path string) error {
	r, err := trace.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	var last time.Time
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if (session != "" && ev.Session != session) || (errOnly && ev.Error == "") {
			continue
		}
		var delta time.Duration
		if !last.IsZero() {
			delta = ev.Timestamp.Sub(last)
		}
		last = ev.Timestamp
		fmt.Printf("%s +%s\n", ev, delta)
	}
}
