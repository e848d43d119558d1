package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"adwatcher/internal/trend"
)

// Show prints the most recently seen listings with their price trend.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStoreRequired(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	states, err := store.ListRecent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Fprintln(os.Stdout, "no listings found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Key\tKind\tTotal\tTrend\tLast Seen (UTC)\tTitle")

	for _, state := range states {
		history, histErr := store.History(ctx, state.Key, a.Config.History.Limit)
		if histErr != nil {
			return histErr
		}
		values := make([]float64, len(history))
		for i, price := range history {
			values[i] = price.InexactFloat64()
		}

		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			state.Key,
			state.Kind,
			formatOptional(state.LastTotal),
			trend.Summarize(values, a.Config.History.TrendWidth),
			state.LastSeen.UTC().Format(time.RFC3339),
			sanitizeInline(state.Title),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatOptional(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}
