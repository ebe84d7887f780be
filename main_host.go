//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"ember/app"
	"ember/hal"
	"ember/internal/buildinfo"
)

func main() {
	var (
		cfg      hal.HeadlessConfig
		path     string
		window   bool
		serialIn bool
		level    string
		version  bool
	)
	flag.StringVar(&path, "workload", "", "TOML workload file (default: built-in demo).")
	flag.IntVar(&cfg.Hz, "hz", hal.DefaultHz, "SysTick rate in ticks per second.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run forever).")
	flag.BoolVar(&window, "window", false, "Show the display in a window.")
	flag.BoolVar(&serialIn, "serial", true, "Feed stdin to the simulated UART (Ctrl-\\ quits).")
	flag.StringVar(&level, "log", "", "Log level override (emerg ... trace, disabled).")
	flag.BoolVar(&version, "version", false, "Print the build and exit.")
	flag.Parse()

	if version {
		fmt.Println(buildinfo.String())
		return
	}
	if err := run(path, level, window, serialIn, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path, level string, window, serialIn bool, cfg hal.HeadlessConfig) error {
	w := app.DefaultWorkload()
	if path != "" {
		var err error
		if w, err = app.LoadWorkload(path); err != nil {
			return err
		}
	}
	if level != "" {
		w.Log.Level = level
	}

	var input io.Reader
	if serialIn {
		restore, err := hal.RawInput(os.Stdin)
		if err != nil {
			return err
		}
		defer restore()
		input = os.Stdin
	}

	var err error
	if window {
		err = hal.RunWindow(func(h hal.HAL) func() error {
			return app.New(h, w, app.Options{KeepAlive: true})
		}, cfg.Hz, input)
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		cfg.Input = input
		err = hal.RunHeadless(ctx, func(h hal.HAL) func() error {
			return app.New(h, w, app.Options{})
		}, cfg)
	}
	if errors.Is(err, hal.ErrQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
