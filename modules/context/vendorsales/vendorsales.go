// Package vendorsales provides a context module backed by the nightly
// vendor-sales CSV export. Each row is one vendor's totals for one day;
// the module surfaces a recent-window rollup so agents can answer
// questions about vendor performance without a live accounting link.
package vendorsales

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	ctxengine "github.com/shiftwise/shiftwise/internal/context"
)

// ModuleID is the stable identifier used in agent configuration.
const ModuleID = "ops.vendor_sales"

// defaultWindow is how far back rows are aggregated.
const defaultWindow = 7 * 24 * time.Hour

// Interface guard.
var _ ctxengine.Provider = (*Module)(nil)

// Config holds the settings for the vendor-sales module.
type Config struct {
	// Path is the CSV export location. Required.
	Path string

	// Priority orders this module among context providers. Zero keeps
	// the default of 50.
	Priority int

	// Window bounds how far back rows are included. Zero means 7 days.
	Window time.Duration

	// Agents optionally restricts which agents see this module.
	Agents []string
}

// Module reads the vendor-sales export on every Collect call, so a
// fresh nightly file is picked up without a restart.
type Module struct {
	cfg       config
	estimator ctxengine.TokenEstimator
	now       func() time.Time
}

type config struct {
	path     string
	priority int
	window   time.Duration
	agents   []string
}

// New builds a vendor-sales module from cfg.
func New(cfg Config) (*Module, error) {
	if cfg.Path == "" {
		return nil, errors.New("vendorsales: path is required")
	}
	if cfg.Priority == 0 {
		cfg.Priority = 50
	}
	if cfg.Window == 0 {
		cfg.Window = defaultWindow
	}
	return &Module{
		cfg: config{
			path:     cfg.Path,
			priority: cfg.Priority,
			window:   cfg.Window,
			agents:   cfg.Agents,
		},
		estimator: ctxengine.NewCharEstimator(0),
		now:       time.Now,
	}, nil
}

// ModuleID implements ctxengine.Provider.
func (m *Module) ModuleID() string { return ModuleID }

// ModuleName implements ctxengine.Provider.
func (m *Module) ModuleName() string { return "Vendor Sales" }

// Priority implements ctxengine.Provider.
func (m *Module) Priority() int { return m.cfg.priority }

// Agents implements ctxengine.Provider.
func (m *Module) Agents() []string { return m.cfg.agents }

// Enabled implements ctxengine.Provider.
func (m *Module) Enabled() bool { return true }

// vendorTotals is the per-vendor aggregate over the window.
type vendorTotals struct {
	ID             string
	Name           string
	TotalSales     float64
	VendorAmount   float64
	RetainedAmount float64
	Days           int
}

// report is the payload produced by Collect.
type report struct {
	From    time.Time
	To      time.Time
	Vendors []vendorTotals
}

// Summary implements ctxengine.Summarizer.
func (r *report) Summary() map[string]float64 {
	var sales, retained float64
	for _, v := range r.Vendors {
		sales += v.TotalSales
		retained += v.RetainedAmount
	}
	return map[string]float64{
		"total_sales":     sales,
		"retained_amount": retained,
		"vendor_count":    float64(len(r.Vendors)),
	}
}

// Collect implements ctxengine.Provider. It re-reads the export file so
// the newest nightly drop is always reflected.
func (m *Module) Collect(ctx context.Context, scope ctxengine.Scope) (ctxengine.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(m.cfg.path)
	if err != nil {
		return nil, fmt.Errorf("vendorsales: open export: %w", err)
	}
	defer f.Close()

	to := m.now()
	from := to.Add(-m.cfg.window)

	vendors, err := aggregate(f, from, to)
	if err != nil {
		return nil, fmt.Errorf("vendorsales: read export: %w", err)
	}

	return &report{From: from, To: to, Vendors: vendors}, nil
}

// Column layout of the export, matching the scraper's CSV writer.
const (
	colDate = iota
	colVendorID
	colVendorName
	colTotalSales
	colVendorAmount
	colRetainedAmount
	columnCount
)

// aggregate folds export rows within [from, to] into per-vendor totals,
// sorted by total sales descending.
func aggregate(r io.Reader, from, to time.Time) ([]vendorTotals, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = columnCount

	byVendor := make(map[string]*vendorTotals)
	first := true

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if strings.EqualFold(row[colDate], "date") {
				continue
			}
		}

		day, err := time.Parse("2006-01-02", row[colDate])
		if err != nil {
			return nil, fmt.Errorf("row date %q: %w", row[colDate], err)
		}
		if day.Before(from.Truncate(24*time.Hour)) || day.After(to) {
			continue
		}

		v, ok := byVendor[row[colVendorID]]
		if !ok {
			v = &vendorTotals{ID: row[colVendorID], Name: row[colVendorName]}
			byVendor[row[colVendorID]] = v
		}
		v.Days++
		v.TotalSales += parseAmount(row[colTotalSales])
		v.VendorAmount += parseAmount(row[colVendorAmount])
		v.RetainedAmount += parseAmount(row[colRetainedAmount])
	}

	out := make([]vendorTotals, 0, len(byVendor))
	for _, v := range byVendor {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSales != out[j].TotalSales {
			return out[i].TotalSales > out[j].TotalSales
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// parseAmount tolerates currency formatting the scraper leaves in place.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// EstimateTokens implements ctxengine.Provider.
func (m *Module) EstimateTokens(p ctxengine.Payload) int {
	return m.estimator.Estimate(m.Format(p))
}

// Format implements ctxengine.Provider.
func (m *Module) Format(p ctxengine.Payload) string {
	rep, ok := p.(*report)
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Vendor sales (%s to %s)\n",
		rep.From.Format("2006-01-02"), rep.To.Format("2006-01-02"))

	if len(rep.Vendors) == 0 {
		b.WriteString("No vendor sales recorded in this period.\n")
		return b.String()
	}

	var sales, retained float64
	for _, v := range rep.Vendors {
		sales += v.TotalSales
		retained += v.RetainedAmount
	}
	fmt.Fprintf(&b, "Total sales: $%.2f across %d vendors (store retained $%.2f).\n",
		sales, len(rep.Vendors), retained)

	for _, v := range rep.Vendors {
		fmt.Fprintf(&b, "- %s: $%.2f sales over %d day(s), $%.2f owed to vendor\n",
			v.Name, v.TotalSales, v.Days, v.VendorAmount)
	}
	return b.String()
}
