package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"ember/app"

	"github.com/BurntSushi/toml"
)

func main() {
	var (
		inPath  = flag.String("in", "", "Workload file to check.")
		outPath = flag.String("out", "", "Output file for dump mode (default stdout).")
		mode    = flag.String("mode", "check", "check|dump.")
	)
	flag.Parse()

	switch strings.ToLower(*mode) {
	case "check":
		if *inPath == "" {
			fatalf("usage: mkworkload -mode check -in workload.toml\n       mkworkload -mode dump [-out workload.toml]")
		}
		if err := check(os.Stdout, *inPath); err != nil {
			fatalf("check: %v", err)
		}
	case "dump":
		if err := dump(*outPath); err != nil {
			fatalf("dump: %v", err)
		}
	default:
		fatalf("unknown mode: %s", *mode)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

// check validates a workload and lists what it would boot.
func check(w io.Writer, path string) error {
	wl, err := app.LoadWorkload(path)
	if err != nil {
		return err
	}
	model := wl.Kernel.Model
	if model == "" {
		model = "full"
	}
	fmt.Fprintf(w, "model %s, quantum %d, checks %t\n", model, wl.Kernel.TimeQuantum, wl.Kernel.Checks)
	fmt.Fprintf(w, "%-10s %-7s %4s %6s %4s\n", "NAME", "KIND", "PRI", "PERIOD", "WORK")
	for _, t := range wl.Threads {
		fmt.Fprintf(w, "%-10s %-7s %4d %6d %4d\n", t.Name, t.Kind, t.Priority, t.Period, t.Work)
	}
	for _, s := range wl.Sandbox {
		fmt.Fprintf(w, "%-10s %-7s %4d %6d %4s\n", s.Name, "sandbox", s.Priority, s.Period, "-")
	}
	return nil
}

// dump writes the built-in workload as a starting point for custom ones.
func dump(path string) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriter(out)
	if err := toml.NewEncoder(bw).Encode(app.DefaultWorkload()); err != nil {
		return err
	}
	return bw.Flush()
}
