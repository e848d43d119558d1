package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"adwatcher/internal/trend"
)

// History prints the full price history of one listing, its sparkline, and a
// least-squares projection of the next observation.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	if opts.Key == "" {
		return errors.New("a listing key is required")
	}

	store, closeStore, err := a.openStoreRequired(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	state, found, err := store.GetState(ctx, opts.Key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no listing stored under key %s", opts.Key)
	}

	points, err := store.HistoryPoints(ctx, opts.Key)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s  %s\n", state.Key, sanitizeInline(state.Title))
	fmt.Fprintf(os.Stdout, "kind=%s  first_seen=%s  last_seen=%s\n\n",
		state.Kind,
		state.FirstSeen.UTC().Format(time.RFC3339),
		state.LastSeen.UTC().Format(time.RFC3339),
	)

	if len(points) == 0 {
		fmt.Fprintln(os.Stdout, "no price history recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Seen (UTC)\tPrice")
	values := make([]float64, len(points))
	for i, point := range points {
		values[i] = point.Price.InexactFloat64()
		fmt.Fprintf(writer, "%s\t%s\n", point.SeenAt.UTC().Format(time.RFC3339), point.Price.StringFixed(2))
	}
	writer.Flush()

	fmt.Fprintf(os.Stdout, "\ntrend %s\n", trend.Summarize(values, a.Config.History.TrendWidth))

	if projected, ok := projectNext(values); ok {
		fmt.Fprintf(os.Stdout, "projected next %.2f\n", projected)
	}

	return nil
}

// projectNext fits price against observation index and extrapolates one step.
// A projection needs at least three points and a non-degenerate fit.
func projectNext(values []float64) (float64, bool) {
	n := len(values)
	if n < 3 {
		return 0, false
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}

	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	projected := slope*fn + intercept
	if projected < 0 {
		projected = 0
	}
	return projected, true
}
