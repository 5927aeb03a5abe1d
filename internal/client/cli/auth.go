package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/propsync/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for credentials and authenticates. When the server cannot be
// reached the session manager falls back to the identity cached by the last
// online login; the message printed says which path succeeded.
//
// The password is wiped before returning.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.core.Auth().Login(ctx, email, password); err != nil {
		fmt.Fprintln(a.out, "Login unsuccessful")
		return err
	}

	if a.core.Store().Session().Offline {
		fmt.Fprintln(a.out, "Server unavailable, logged in offline")
	} else {
		fmt.Fprintln(a.out, "Login successful")
	}
	return nil
}

// Logout ends the session. Cached data and queued actions are discarded.
func (a *App) Logout(ctx context.Context) error {
	if n := a.core.Queue().Len(ctx); n > 0 {
		fmt.Fprintf(a.out, "Discarding %d queued action(s)\n", n)
	}
	if err := a.core.Auth().Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// Status prints the session and connectivity state.
func (a *App) Status(ctx context.Context) error {
	snap := a.core.Store().Snapshot()
	s := snap.Session

	fmt.Fprintf(a.out, "Session: %s\n", s.State)
	if s.Email != "" {
		fmt.Fprintf(a.out, "User: %s\n", s.Email)
	}
	if !s.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "Token expires: %s\n", s.ExpiresAt.Local().Format(time.DateTime))
	}
	if s.Offline {
		fmt.Fprintln(a.out, "Logged in offline")
	}
	if snap.Online {
		fmt.Fprintln(a.out, "Server: online")
	} else {
		fmt.Fprintln(a.out, "Server: offline")
	}
	fmt.Fprintf(a.out, "Queued actions: %d\n", a.core.Queue().Len(ctx))
	return nil
}
