package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/propsync/internal/client/app"
	"github.com/dmitrijs2005/propsync/internal/client/queue"
	"github.com/dmitrijs2005/propsync/internal/client/services"
	"github.com/dmitrijs2005/propsync/internal/client/state"
)

// Core is the part of the wired client the CLI drives. *app.App satisfies it.
type Core interface {
	Auth() services.AuthService
	Properties() services.PropertyService
	Store() *state.Store
	Queue() *queue.Queue
	Sync(ctx context.Context) (app.SyncReport, error)
}

type App struct {
	core   Core
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(core Core, in io.Reader, out io.Writer) *App {
	return &App{core: core, reader: bufio.NewReader(in), out: out}
}

// Run asks for credentials unless a session was restored, then serves
// commands until the user exits.
func (a *App) Run(ctx context.Context, restored bool) {
	printlnFn("Welcome to propsync CLI (type 'help' for commands)")

	if !restored {
		_ = a.Login(ctx)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.core.Store().Session().HasToken()
}

func (a *App) getStatus() string {
	snap := a.core.Store().Snapshot()

	var parts []string
	if snap.Session.Email != "" {
		parts = append(parts, snap.Session.Email)
	}
	if snap.Online {
		parts = append(parts, "online")
	} else {
		parts = append(parts, "offline")
	}
	if n := a.core.Queue().Len(context.Background()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", n))
	}
	return "(" + strings.Join(parts, " ") + ")"
}
