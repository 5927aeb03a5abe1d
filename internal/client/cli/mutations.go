package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/models"
	"github.com/dmitrijs2005/propsync/internal/client/services"
)

var getChanges = GetChanges

// readChanges uses inline name=value arguments, or prompts when there are none.
func (a *App) readChanges(args []string) (map[string]any, error) {
	lines := args
	if len(lines) == 0 {
		var err error
		if lines, err = getChanges(a.reader, a.out); err != nil {
			return nil, err
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no changes given")
	}
	return models.ChangesFromStrings(lines)
}

func (a *App) reportMutation(res services.MutationResult) {
	if res.Queued {
		fmt.Fprintf(a.out, "Offline: queued as %s, will be sent on reconnect\n", res.ActionID)
		return
	}
	fmt.Fprintln(a.out, "Saved")
}

func (a *App) UpdateUnit(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, "update-unit <id> [name=value...]"); err != nil {
		return err
	}
	changes, err := a.readChanges(args[1:])
	if err != nil {
		return err
	}
	res, err := a.core.Properties().UpdateUnit(ctx, args[0], changes)
	if err != nil {
		return err
	}
	a.reportMutation(res)
	return nil
}

func (a *App) UpdateProperty(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, "update-property <id> [name=value...]"); err != nil {
		return err
	}
	changes, err := a.readChanges(args[1:])
	if err != nil {
		return err
	}
	res, err := a.core.Properties().UpdateProperty(ctx, args[0], changes)
	if err != nil {
		return err
	}
	a.reportMutation(res)
	return nil
}

// RecordPayment records a payment dated now.
func (a *App) RecordPayment(ctx context.Context, args []string) error {
	if err := requireArgs(args, 2, "pay <unit> <amount> [method]"); err != nil {
		return err
	}
	in := models.PaymentInput{Amount: args[1], PaidAt: time.Now().UTC()}
	if len(args) > 2 {
		in.Method = args[2]
	}
	res, err := a.core.Properties().RecordPayment(ctx, args[0], in)
	if err != nil {
		return err
	}
	a.reportMutation(res)
	return nil
}

// ShowQueue lists pending offline actions oldest first.
func (a *App) ShowQueue(ctx context.Context) error {
	pending := a.core.Queue().Pending(ctx)
	if len(pending) == 0 {
		fmt.Fprintln(a.out, "Queue is empty")
		return nil
	}
	for i, act := range pending {
		fmt.Fprintf(a.out, "%d. %s %s (queued %s)\n", i+1, act.Type, act.ID, act.EnqueuedAt.Local().Format(time.DateTime))
	}
	return nil
}

// Sync replays the offline queue and refreshes cached data.
func (a *App) Sync(ctx context.Context) error {
	report, err := a.core.Sync(ctx)
	if err != nil && report.Replayed == 0 && report.Pending == 0 {
		return err
	}
	fmt.Fprintf(a.out, "Replayed %d action(s), %d pending\n", report.Replayed, report.Pending)
	return err
}
