package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"adwatcher/internal/listing"
	"adwatcher/internal/storage"
)

// Export writes tracked listings as CSV and/or renders one listing's price
// history as a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.PNGPath != "" && opts.Key == "" {
		return errors.New("--png requires --key to select one listing")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStoreRequired(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.CSVPath != "" {
		if err := a.exportCSV(ctx, store, opts); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.exportPNG(ctx, store, opts); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) exportCSV(ctx context.Context, store *storage.Store, opts ExportOptions) error {
	states, err := store.ListRecent(ctx, opts.MaxPoints)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		a.Logger.Info().Msg("no listings to export")
		return nil
	}

	if err := ensureDir(opts.CSVPath); err != nil {
		return err
	}
	file, err := os.Create(opts.CSVPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"key", "source", "kind", "title", "url", "last_price", "last_shipping", "last_total", "first_seen", "last_seen"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, state := range states {
		row := []string{
			state.Key,
			state.Source,
			string(state.Kind),
			state.Title,
			state.URL,
			formatOptional(state.LastPrice),
			formatOptional(state.LastShipping),
			formatOptional(state.LastTotal),
			state.FirstSeen.UTC().Format(time.RFC3339),
			state.LastSeen.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	a.Logger.Info().Int("listings", len(states)).Str("path", opts.CSVPath).Msg("wrote csv export")
	return writer.Error()
}

func (a *App) exportPNG(ctx context.Context, store *storage.Store, opts ExportOptions) error {
	points, err := store.HistoryPoints(ctx, opts.Key)
	if err != nil {
		return err
	}
	if len(points) < 2 {
		return fmt.Errorf("listing %s has %d history points; a chart needs at least 2", opts.Key, len(points))
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)

	x := make([]time.Time, len(downsampled))
	prices := make([]float64, len(downsampled))
	for i, point := range downsampled {
		x[i] = point.SeenAt
		prices[i] = point.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (" + a.Config.Currency.Reference + ")",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    opts.Key,
				XValues: x,
				YValues: prices,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := ensureDir(opts.PNGPath); err != nil {
		return err
	}
	file, err := os.Create(opts.PNGPath)
	if err != nil {
		return err
	}
	defer file.Close()

	a.Logger.Info().Int("points", len(downsampled)).Str("path", opts.PNGPath).Msg("rendering price chart")
	return graph.Render(chart.PNG, file)
}

func downsamplePoints(points []listing.PricePoint, max int) []listing.PricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]listing.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
