package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
)

// printlnFn and printFn are test seams for user-facing output.
var (
	printlnFn = fmt.Println
	printFn   = fmt.Print
)

// commandContext scopes a single command. Ctrl-C cancels the command and
// returns to the prompt.
var commandContext = func(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

const helpText = "Available commands: hide, reveal <id> [dir], (l)ist, delete <id>, status, subscribe [tier], cancel, exit"

// execIface defines the command surface the REPL dispatches to. The real App
// type satisfies it; tests provide a lightweight stub.
type execIface interface {
	Hide(ctx context.Context) error
	Reveal(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Delete(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Subscribe(ctx context.Context, args []string) error
	Cancel(ctx context.Context) error
}

// runREPL reads commands from reader until EOF, "exit" or "quit". Command
// errors are rendered and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printFn(fmt.Sprintf("gv %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}

		cctx, cancel := commandContext(ctx)
		var cmdErr error

		switch cmd {
		case "help":
			printlnFn(helpText)
		case "hide":
			cmdErr = a.Hide(cctx)
		case "reveal":
			cmdErr = a.Reveal(cctx, args)
		case "l", "list":
			cmdErr = a.List(cctx)
		case "delete":
			cmdErr = a.Delete(cctx, args)
		case "status":
			cmdErr = a.Status(cctx)
		case "subscribe":
			cmdErr = a.Subscribe(cctx, args)
		case "cancel":
			cmdErr = a.Cancel(cctx)
		default:
			printlnFn("Unknown command:", cmd)
		}
		cancel()

		if cmdErr != nil {
			printlnFn(describeError(cmdErr))
		}
		if ctx.Err() != nil {
			return
		}
	}
}
