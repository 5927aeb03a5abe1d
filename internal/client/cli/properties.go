package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/propsync/internal/client/cache"
	"github.com/dmitrijs2005/propsync/internal/client/models"
)

const forceFlag = "-f"

// fetchArgs splits the optional -f flag from positional arguments.
func fetchArgs(args []string) ([]string, cache.Options) {
	opts := cache.Options{ForceRefresh: slices.Contains(args, forceFlag)}
	pos := slices.DeleteFunc(slices.Clone(args), func(s string) bool { return s == forceFlag })
	return pos, opts
}

func requireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

// render prints a fetch result. A value served from cache is marked, with the
// network error that caused the fallback if there was one.
func render[T any](w io.Writer, res cache.Result[T], show func(io.Writer, T)) error {
	if !res.Success {
		return res.Err
	}
	show(w, res.Data)
	if res.FromCache {
		if res.Err != nil {
			fmt.Fprintf(w, "(from cache, server said: %v)\n", res.Err)
		} else {
			fmt.Fprintln(w, "(from cache)")
		}
	}
	return nil
}

func (a *App) ListProperties(ctx context.Context, args []string) error {
	_, opts := fetchArgs(args)
	res := a.core.Properties().FetchProperties(ctx, opts)
	return render(a.out, res, func(w io.Writer, props []models.Property) {
		if len(props) == 0 {
			fmt.Fprintln(w, "No properties")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tUNITS")
		for _, p := range props {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Address, p.UnitCount)
		}
		_ = tw.Flush()
	})
}

func (a *App) ShowProperty(ctx context.Context, args []string) error {
	pos, opts := fetchArgs(args)
	if err := requireArgs(pos, 1, "property <id> [-f]"); err != nil {
		return err
	}
	res := a.core.Properties().FetchProperty(ctx, pos[0], opts)
	return render(a.out, res, func(w io.Writer, p models.Property) {
		fmt.Fprintf(w, "Property %s: %s\n", p.ID, p.Name)
		if p.Address != "" {
			fmt.Fprintf(w, "Address: %s\n", p.Address)
		}
		fmt.Fprintf(w, "Units: %d\n", p.UnitCount)
	})
}

func (a *App) ShowUnit(ctx context.Context, args []string) error {
	pos, opts := fetchArgs(args)
	if err := requireArgs(pos, 1, "unit <id> [-f]"); err != nil {
		return err
	}
	res := a.core.Properties().FetchUnitDetails(ctx, pos[0], opts)
	return render(a.out, res, func(w io.Writer, u models.Unit) {
		fmt.Fprintf(w, "Unit %s (%s) in property %s\n", u.Number, u.ID, u.PropertyID)
		if u.Rent != "" {
			fmt.Fprintf(w, "Rent: %s\n", u.Rent)
		}
		if u.Status != "" {
			fmt.Fprintf(w, "Status: %s\n", u.Status)
		}
		if u.Tenant != "" {
			fmt.Fprintf(w, "Tenant: %s\n", u.Tenant)
		}
	})
}

func (a *App) ListPayments(ctx context.Context, args []string) error {
	pos, opts := fetchArgs(args)
	if err := requireArgs(pos, 1, "payments <unit> [-f]"); err != nil {
		return err
	}
	res := a.core.Properties().FetchUnitPayments(ctx, pos[0], opts)
	return render(a.out, res, func(w io.Writer, pays []models.Payment) {
		if len(pays) == 0 {
			fmt.Fprintln(w, "No payments")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tAMOUNT\tPAID\tMETHOD")
		for _, p := range pays {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Amount, p.PaidAt.Format(time.DateOnly), p.Method)
		}
		_ = tw.Flush()
	})
}

func (a *App) ShowSubscription(ctx context.Context, args []string) error {
	pos, opts := fetchArgs(args)
	if err := requireArgs(pos, 1, "subscription <org> [-f]"); err != nil {
		return err
	}
	res := a.core.Properties().FetchSubscription(ctx, pos[0], opts)
	return render(a.out, res, func(w io.Writer, s models.Subscription) {
		fmt.Fprintf(w, "Plan: %s (%s)\n", s.Plan, s.Status)
		if !s.RenewsAt.IsZero() {
			fmt.Fprintf(w, "Renews: %s\n", s.RenewsAt.Format(time.DateOnly))
		}
	})
}
