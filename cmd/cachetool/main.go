// cachetool is a simple interactive CLI for inspecting and exercising a
// diskcache directory.
//
// Usage:
//
//	cachetool [flags] <cache-dir>
//
// Flags:
//
//	--value-count   Number of byte-blob slots per entry (default: 1)
//	--max-size      Soft size ceiling in bytes (default: 10485760)
//	--app-version   Opaque app version stamp (default: 1)
//
// Commands (in REPL):
//
//	put <key> <slot0> [slot1 ...]   Write and commit all slots for key
//	get <key> [slot]                Print one slot, or all slot lengths
//	rm <key>                        Remove key
//	flush                           Run a synchronous trim + flush
//	size                            Print the cache's current total size
//	help                            Show this help
//	exit / quit / q                 Exit
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/diskcache/diskcache"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("cachetool", flag.ContinueOnError)
	valueCount := fs.Int("value-count", 1, "number of byte-blob slots per entry")
	maxSize := fs.Int64("max-size", 10*1024*1024, "soft size ceiling in bytes")
	appVersion := fs.Int32("app-version", 1, "opaque app version stamp")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cachetool [flags] <cache-dir>\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		fs.Usage()

		return fmt.Errorf("expected exactly one cache directory argument, got %d", fs.NArg())
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	c, err := diskcache.Open(fs.Arg(0), diskcache.Options{
		AppVersion: *appVersion,
		ValueCount: int32(*valueCount),
		MaxSize:    *maxSize,
		Events:     &slogEventSink{logger: logger},
	})
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() { _ = c.Close() }()

	repl := &repl{cache: c, valueCount: *valueCount}

	return repl.run()
}

// slogEventSink adapts diskcache.EventSink to structured logging, the way
// the rest of this codebase's CLI surfaces report background activity.
type slogEventSink struct {
	logger *slog.Logger
}

func (s *slogEventSink) Event(e diskcache.Event) {
	attrs := []any{slog.String("kind", e.Kind.String())}

	if e.Key != "" {
		attrs = append(attrs, slog.String("key", e.Key))
	}

	if e.Detail != "" {
		attrs = append(attrs, slog.String("detail", e.Detail))
	}

	if e.Err != nil {
		attrs = append(attrs, slog.String("err", e.Err.Error()))
	}

	s.logger.Info("diskcache event", attrs...)
}

type repl struct {
	cache      *diskcache.Cache
	valueCount int
	liner      *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".cachetool_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Printf("cachetool - diskcache CLI (value_count=%d)\n", r.valueCount)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("cachetool> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)

		case "get":
			r.cmdGet(args)

		case "rm", "remove", "del":
			r.cmdRemove(args)

		case "flush":
			r.cmdFlush()

		case "size":
			fmt.Println(r.cache.Size())

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.liner.WriteHistory(f)
			_ = f.Close()
		}
	}
}

func (r *repl) printHelp() {
	fmt.Println(`Commands:
  put <key> <slot0> [slot1 ...]   Write and commit all slots for key
  get <key> [slot]                Print one slot, or all slot lengths
  rm <key>                        Remove key
  flush                           Run a synchronous trim + flush
  size                            Print the cache's current total size
  help                            Show this help
  exit / quit / q                 Exit`)
}

func (r *repl) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: put <key> <slot0> [slot1 ...]")

		return
	}

	key := args[0]
	values := args[1:]

	ed, err := r.cache.Edit(key)
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	if ed == nil {
		fmt.Printf("%s is already being edited\n", key)

		return
	}

	for slot, v := range values {
		if slot >= r.valueCount {
			break
		}

		w, err := ed.NewWriter(slot)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			_ = ed.Abort()

			return
		}

		if _, err := io.WriteString(w, v); err != nil {
			fmt.Printf("error: %v\n", err)
			_ = ed.Abort()

			return
		}
	}

	if err := ed.Commit(); err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Println("ok")
}

func (r *repl) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: get <key> [slot]")

		return
	}

	key := args[0]

	snap, err := r.cache.Get(key)
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	if snap == nil {
		fmt.Println("(not found)")

		return
	}
	defer func() { _ = snap.Close() }()

	if len(args) >= 2 {
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Printf("invalid slot: %v\n", err)

			return
		}

		data, err := io.ReadAll(snap.Reader(slot))
		if err != nil {
			fmt.Printf("error: %v\n", err)

			return
		}

		fmt.Printf("%s\n", data)

		return
	}

	for slot := range r.valueCount {
		fmt.Printf("slot %d: %d bytes\n", slot, snap.Length(slot))
	}
}

func (r *repl) cmdRemove(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: rm <key>")

		return
	}

	ok, err := r.cache.Remove(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	if !ok {
		fmt.Println("(not found)")

		return
	}

	fmt.Println("ok")
}

func (r *repl) cmdFlush() {
	if err := r.cache.Flush(); err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Println("ok")
}
