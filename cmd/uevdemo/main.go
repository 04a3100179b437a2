// Command uevdemo exercises the public surface of package uev end to end:
// one I/O watcher on a pipe, one periodic timer, and one event watcher
// triggered from a signal handler standing in for an ISR.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ridephysics/uev"
)

func main() {
	periodMS := flag.Int64("timer-period-ms", 1000, "periodic timer interval in milliseconds")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	logger := logrus.New()
	lvl, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logger.SetLevel(lvl)

	ctx, err := uev.NewContext()
	if err != nil {
		logger.Fatalf("context_init: %v", err)
	}
	ctx.SetLogger(logger)
	defer ctx.Exit()

	r, w, err := os.Pipe()
	if err != nil {
		logger.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	io, err := uev.NewIOWatcher(ctx, func(watcher uev.Watcher, arg interface{}, events uev.Events) {
		buf := make([]byte, 256)
		n, _ := syscall.Read(int(r.Fd()), buf)
		logger.WithField("bytes", n).Info("pipe readable")
	}, nil, int(r.Fd()), uev.EvRead)
	if err != nil {
		logger.Fatalf("io_init: %v", err)
	}
	if err := io.Start(); err != nil {
		logger.Fatalf("io_start: %v", err)
	}

	tick := 0
	timer, err := uev.NewTimer(ctx, func(watcher uev.Watcher, arg interface{}, events uev.Events) {
		tick++
		logger.WithField("tick", tick).Info("periodic timer fired")
		fmt.Fprintf(w, "tick %d\n", tick)
	}, nil, *periodMS, *periodMS)
	if err != nil {
		logger.Fatalf("timer_init: %v", err)
	}
	if err := timer.Start(); err != nil {
		logger.Fatalf("timer_start: %v", err)
	}

	ev, err := uev.NewEvent(ctx, func(watcher uev.Watcher, arg interface{}, events uev.Events) {
		logger.Info("event posted, shutting down")
		ctx.Exit()
	}, nil)
	if err != nil {
		logger.Fatalf("event_init: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = ev.Post()
	}()

	if err := ctx.Run(uev.RunBlocking); err != nil {
		logger.Fatalf("context_run: %v", err)
	}
}
