// Command validate performs end-to-end integrity checks on the zone reading
// fixture: every record parses and validates, the zone set is complete, the
// detector raises exactly the expected alerts, and the aggregates match the
// raw figures.
//
// Usage:
//
//	go run ./cmd/validate -readings data/mock/zone_readings.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/gas-leak-monitor/internal/aggregate"
	"github.com/couchcryptid/gas-leak-monitor/internal/detector"
	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/monitor"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
)

var fixtureTime = time.Date(2024, time.November, 4, 9, 0, 0, 0, time.UTC)

var expectedZones = []string{
	"Strijp", "Woensel", "Tongelre", "Stratum", "Gestel", "Industrial Zone", "City Center",
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	readingsPath := flag.String("readings", "", "path to the zone readings JSON fixture")
	flag.Parse()

	if *readingsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*readingsPath); code != 0 {
		os.Exit(code)
	}
}

func run(readingsPath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(fixtureTime))
	defer domain.SetClock(nil)

	fmt.Println("=== Gas Reading Integrity Validation ===")
	fmt.Println()

	raw, err := loadJSON[json.RawMessage](readingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load readings: %v\n", err)
		return 1
	}

	schema, readings := validateSchema(raw)
	phases := []*phase{
		schema,
		validateZoneCoverage(readings),
	}
	detection, svc := validateDetection(readings)
	phases = append(phases, detection, validateAggregates(readings, svc))

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d raw, %d valid, %d active alerts\n",
		len(raw), len(readings), len(svc.GetActiveAlerts()))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Schema ──

func validateSchema(raw []json.RawMessage) (*phase, []domain.Reading) {
	p := &phase{name: "Phase 1: Reading schema"}
	readings := make([]domain.Reading, 0, len(raw))
	for i, item := range raw {
		r, err := domain.ParseReading(item, fixtureTime)
		if err != nil {
			p.errorf("record %d: %v", i, err)
			continue
		}
		if !r.Timestamp.Equal(fixtureTime) {
			p.errorf("record %d (%s): timestamp %s, want %s", i, r.ZoneID, r.Timestamp.Format(time.RFC3339), fixtureTime.Format(time.RFC3339))
		}
		readings = append(readings, r)
	}
	return p, readings
}

// ── Phase 2: Zone coverage ──

func validateZoneCoverage(readings []domain.Reading) *phase {
	p := &phase{name: "Phase 2: Zone coverage"}
	seen := make(map[string]int, len(readings))
	for _, r := range readings {
		seen[r.ZoneID]++
	}
	for zone, n := range seen {
		if n > 1 {
			p.errorf("zone %q appears %d times", zone, n)
		}
	}
	for _, zone := range expectedZones {
		if seen[zone] == 0 {
			p.errorf("zone %q missing", zone)
		}
		delete(seen, zone)
	}
	for zone := range seen {
		p.errorf("unexpected zone %q", zone)
	}
	return p
}

// ── Phase 3: Detection ──

func validateDetection(readings []domain.Reading) (*phase, *monitor.Service) {
	p := &phase{name: "Phase 3: Leak detection"}
	policy := detector.DefaultPolicy
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := monitor.New(policy, logger, observability.NewMetricsForTesting(),
		monitor.WithClock(clockwork.NewFakeClockAt(fixtureTime)))

	ctx := context.Background()
	if err := svc.Ingest(ctx, readings); err != nil {
		p.errorf("ingest: %v", err)
		return p, svc
	}
	if _, err := svc.CheckForLeaks(ctx); err != nil {
		p.errorf("scan: %v", err)
	}

	active := make(map[string]domain.Alert)
	for _, a := range svc.GetActiveAlerts() {
		active[a.ZoneID] = a
	}

	for _, r := range readings {
		a, ok := active[r.ZoneID]
		if r.Pressure >= policy.Band.Low {
			if ok {
				p.errorf("zone %q: unexpected %s alert at %.2f bar", r.ZoneID, a.Severity, r.Pressure)
			}
			continue
		}
		if !ok {
			p.errorf("zone %q: no alert at %.2f bar", r.ZoneID, r.Pressure)
			continue
		}
		drop := policy.NominalPressure - r.Pressure
		if want := domain.Classify(drop); a.Severity != want {
			p.errorf("zone %q: severity %s, want %s", r.ZoneID, a.Severity, want)
		}
		if math.Abs(a.PressureDrop-drop) > 1e-9 {
			p.errorf("zone %q: pressure drop %.4f, want %.4f", r.ZoneID, a.PressureDrop, drop)
		}
		if want := math.Max(0, r.FlowRate-policy.NominalFlowRate); math.Abs(a.FlowRateAnomaly-want) > 1e-9 {
			p.errorf("zone %q: flow anomaly %.2f, want %.2f", r.ZoneID, a.FlowRateAnomaly, want)
		}
		if want := domain.EstimateAffectedCustomers(r.FlowRate); a.AffectedCustomers != want {
			p.errorf("zone %q: affected customers %d, want %d", r.ZoneID, a.AffectedCustomers, want)
		}
		if !a.DetectedAt.Equal(fixtureTime) {
			p.errorf("zone %q: detected at %s, want %s", r.ZoneID, a.DetectedAt, fixtureTime)
		}
	}

	created, err := svc.CheckForLeaks(ctx)
	if err != nil {
		p.errorf("rescan: %v", err)
	}
	if created {
		p.errorf("rescan created a duplicate alert")
	}
	return p, svc
}

// ── Phase 4: Aggregates ──

func validateAggregates(readings []domain.Reading, svc *monitor.Service) *phase {
	p := &phase{name: "Phase 4: Aggregates"}

	var total float64
	for _, r := range readings {
		total += r.TotalConsumption
	}
	sum := svc.Summary()
	if math.Abs(sum.TotalConsumption-total) > 1e-6 {
		p.errorf("total consumption %.2f, want %.2f", sum.TotalConsumption, total)
	}
	if got := svc.GetTotalConsumption(); math.Abs(got-total) > 1e-6 {
		p.errorf("GetTotalConsumption %.2f, want %.2f", got, total)
	}
	if sum.ZoneCount != len(readings) {
		p.errorf("zone count %d, want %d", sum.ZoneCount, len(readings))
	}
	active := svc.GetActiveAlerts()
	if sum.ActiveAlertCount != len(active) {
		p.errorf("active alert count %d, want %d", sum.ActiveAlertCount, len(active))
	}
	if want := aggregate.StatusOf(active); sum.OverallStatus != want {
		p.errorf("overall status %s, want %s", sum.OverallStatus, want)
	}
	return p
}
