package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"trading-journal/internal/filter"
	"trading-journal/internal/journal"
)

// EquityPoint is the cumulative realised PnL after one closed trade.
type EquityPoint struct {
	At      time.Time
	TradeID string
	PnL     decimal.Decimal
	Equity  decimal.Decimal
}

// Export renders the equity curve of the filtered trades as PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.PNGPath == "" {
		return errors.New("--png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := a.requireStore(sess, "export"); err != nil {
		return err
	}

	var trades []journal.Trade
	if opts.Saved != "" {
		sf, page, err := sess.journal.RunSaved(ctx, opts.Saved)
		if err != nil {
			return err
		}
		if sf.Scope != filter.ScopeTrades {
			return fmt.Errorf("saved filter %q targets %s, not trades", sf.Name, sf.Scope)
		}
		for _, r := range page.Records {
			if t, ok := r.(journal.Trade); ok {
				trades = append(trades, t)
			}
		}
	} else {
		trades, _, err = sess.journal.Trades(ctx, opts.State, filter.SortSpec{})
		if err != nil {
			return err
		}
	}

	curve := equityCurve(trades)
	if len(curve) == 0 {
		a.Logger.Info().Msg("no closed trades found for export")
		return nil
	}

	points := downsample(curve, opts.MaxPoints)
	a.Logger.Info().Int("total", len(curve)).Int("exported", len(points)).Msg("exporting equity curve")

	path := a.resolveOutput(opts.PNGPath)
	if err := writeEquityPNG(path, points, a.Config.Export.Width, a.Config.Export.Height); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "wrote %s (%d points, final equity %s)\n", path, len(points), formatDecimal(curve[len(curve)-1].Equity, 2))
	return nil
}

func (a *App) resolveOutput(path string) string {
	if filepath.IsAbs(path) || a.Config.Export.OutputDir == "" {
		return path
	}
	return filepath.Join(a.Config.Export.OutputDir, path)
}

// equityCurve accumulates PnL over closed trades in exit order.
func equityCurve(trades []journal.Trade) []EquityPoint {
	closed := make([]journal.Trade, 0, len(trades))
	for _, t := range trades {
		if _, ok := t.PnL(); ok && t.ExitAt != nil {
			closed = append(closed, t)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		if !closed[i].ExitAt.Equal(*closed[j].ExitAt) {
			return closed[i].ExitAt.Before(*closed[j].ExitAt)
		}
		return closed[i].ID < closed[j].ID
	})

	curve := make([]EquityPoint, 0, len(closed))
	equity := decimal.Zero
	for _, t := range closed {
		pnl, _ := t.PnL()
		equity = equity.Add(pnl)
		curve = append(curve, EquityPoint{At: t.ExitAt.UTC(), TradeID: t.ID, PnL: pnl, Equity: equity})
	}
	return curve
}

// downsample keeps max evenly spaced items, always including the first and last.
func downsample[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return items[len(items)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

func writeEquityPNG(path string, points []EquityPoint, width, height int) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	x := make([]time.Time, len(points))
	equity := make([]float64, len(points))
	pnl := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.At
		equity[i] = p.Equity.InexactFloat64()
		pnl[i] = p.PnL.InexactFloat64()
	}
	// go-chart needs two points to draw a line.
	if len(points) == 1 {
		x = append([]time.Time{x[0].Add(-time.Hour)}, x...)
		equity = append([]float64{0}, equity...)
		pnl = append([]float64{0}, pnl...)
	}

	moneyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Equity",
			ValueFormatter: moneyFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Trade PnL",
			ValueFormatter: moneyFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Equity",
				XValues: x,
				YValues: equity,
			},
			chart.TimeSeries{
				Name:    "Trade PnL",
				XValues: x,
				YValues: pnl,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
