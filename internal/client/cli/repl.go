package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	ListProperties(ctx context.Context, args []string) error
	ShowProperty(ctx context.Context, args []string) error
	ShowUnit(ctx context.Context, args []string) error
	ListPayments(ctx context.Context, args []string) error
	ShowSubscription(ctx context.Context, args []string) error
	UpdateUnit(ctx context.Context, args []string) error
	UpdateProperty(ctx context.Context, args []string) error
	RecordPayment(ctx context.Context, args []string) error
	ShowQueue(ctx context.Context) error
	Sync(ctx context.Context) error
}

// runREPL reads commands line by line from r and dispatches them to a.
// The loop exits on EOF or when the user types "exit" or "quit".
//
// Commands
//
//	Not logged in:
//	  - help, login, status, exit | quit
//
//	Logged in:
//	  - properties [-f]            list properties (-f skips the cache)
//	  - property <id> [-f]         show one property
//	  - unit <id> [-f]             show unit details
//	  - payments <unit> [-f]       list unit payments
//	  - subscription <org> [-f]    show an organization's subscription
//	  - update-unit <id> [k=v...]  edit a unit, queued while offline
//	  - update-property <id> [k=v...]
//	  - pay <unit> <amount> [method]
//	  - queue                      list queued offline actions
//	  - sync                       replay the queue and refresh cached data
//	  - status, logout, exit | quit
//
// Handler errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, r *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("propsync %s> ", statusFn()))

		line, err := r.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: properties, property, unit, payments, subscription, update-unit, update-property, pay, queue, sync, status, logout, exit")
			} else {
				printlnFn("Available commands: login, status, exit")
			}

		case "login":
			cmdErr = a.Login(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "properties":
			cmdErr = a.ListProperties(ctx, args)

		case "property":
			cmdErr = a.ShowProperty(ctx, args)

		case "unit":
			cmdErr = a.ShowUnit(ctx, args)

		case "payments":
			cmdErr = a.ListPayments(ctx, args)

		case "subscription":
			cmdErr = a.ShowSubscription(ctx, args)

		case "update-unit":
			cmdErr = a.UpdateUnit(ctx, args)

		case "update-property":
			cmdErr = a.UpdateProperty(ctx, args)

		case "pay":
			cmdErr = a.RecordPayment(ctx, args)

		case "queue":
			cmdErr = a.ShowQueue(ctx)

		case "sync":
			cmdErr = a.Sync(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
		if err != nil {
			return
		}
	}
}
