// Command genmock writes the Eindhoven zone reading fixture used by the
// pipeline tests and cmd/validate, and can publish it to the readings topic
// to drive a local stack.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/zone_readings.json
//	go run ./cmd/genmock -out /tmp/readings.json -jitter -seed 7 \
//	  -leak-zone Gestel -leak-pressure 2.8 -brokers localhost:9092
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/gas-leak-monitor/internal/detector"
	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

var fixtureTime = time.Date(2024, time.November, 4, 9, 0, 0, 0, time.UTC)

// baseline readings of the Eindhoven distribution network.
var zones = []domain.Reading{
	{ZoneID: "Strijp", FlowRate: 1240, Pressure: 4.21, Temperature: 12.5, TotalConsumption: 52340},
	{ZoneID: "Woensel", FlowRate: 1385, Pressure: 4.34, Temperature: 11.8, TotalConsumption: 61870},
	{ZoneID: "Tongelre", FlowRate: 1150, Pressure: 3.2, Temperature: 12.1, TotalConsumption: 58920},
	{ZoneID: "Stratum", FlowRate: 1120, Pressure: 4.12, Temperature: 13.0, TotalConsumption: 54410},
	{ZoneID: "Gestel", FlowRate: 1065, Pressure: 4.47, Temperature: 14.2, TotalConsumption: 50780},
	{ZoneID: "Industrial Zone", FlowRate: 1495, Pressure: 4.05, Temperature: 16.4, TotalConsumption: 69950},
	{ZoneID: "City Center", FlowRate: 1310, Pressure: 4.28, Temperature: 15.1, TotalConsumption: 63215},
}

// reading is the wire shape consumed by the pipeline.
type reading struct {
	ZoneID           string    `json:"zone_id"`
	FlowRate         float64   `json:"flow_rate"`
	Pressure         float64   `json:"pressure"`
	Temperature      float64   `json:"temperature"`
	TotalConsumption float64   `json:"total_consumption"`
	Timestamp        time.Time `json:"timestamp"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the readings JSON fixture")
	jitter := flag.Bool("jitter", false, "vary readings around the baseline")
	seed := flag.Uint64("seed", 1, "random seed used with -jitter")
	leakZone := flag.String("leak-zone", "", "zone whose pressure is overridden to simulate a leak")
	leakPressure := flag.Float64("leak-pressure", 3.2, "pressure in bar applied to -leak-zone")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers; publishes the readings when set")
	topic := flag.String("topic", "gas-zone-readings", "Kafka topic for -brokers")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	readings, err := generate(*jitter, *seed, *leakZone, *leakPressure)
	if err != nil {
		return err
	}

	if err := writeJSON(*out, readings); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d readings: %s", len(readings), *out)

	if *brokers != "" {
		if err := publish(sharedcfg.ParseBrokers(*brokers), *topic, readings); err != nil {
			return fmt.Errorf("publishing readings: %w", err)
		}
		log.Printf("published %d readings to %s", len(readings), *topic)
	}

	printStats(readings)
	return nil
}

func generate(jitter bool, seed uint64, leakZone string, leakPressure float64) ([]reading, error) {
	rng := rand.New(rand.NewPCG(seed, seed))
	found := leakZone == ""

	out := make([]reading, 0, len(zones))
	for _, z := range zones {
		r := reading{
			ZoneID:           z.ZoneID,
			FlowRate:         z.FlowRate,
			Pressure:         z.Pressure,
			Temperature:      z.Temperature,
			TotalConsumption: z.TotalConsumption,
			Timestamp:        fixtureTime,
		}
		if jitter {
			r.FlowRate = float64(1000 + rng.IntN(500))
			r.Pressure = round2(4.0 + rng.Float64()*0.5)
			r.Temperature = float64(10 + rng.IntN(15))
			r.TotalConsumption = float64(50000 + rng.IntN(20000))
		}
		if z.ZoneID == leakZone {
			r.Pressure = leakPressure
			found = true
		}
		out = append(out, r)
	}
	if !found {
		return nil, fmt.Errorf("unknown leak zone %q", leakZone)
	}
	return out, nil
}

func publish(brokers []string, topic string, readings []reading) error {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	msgs := make([]kafkago.Message, 0, len(readings))
	for _, r := range readings {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(r.ZoneID), Value: data, Time: r.Timestamp})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.WriteMessages(ctx, msgs...)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats reports the figures the tests assert on.
func printStats(readings []reading) {
	d := detector.New(nil, nil, nil, detector.DefaultPolicy, nil, nil, nil)

	var total float64
	fmt.Println("\n=== Stats for updating test assertions ===")
	for _, r := range readings {
		total += r.TotalConsumption
		if r.Pressure >= detector.DefaultPolicy.Band.Low {
			continue
		}
		a := d.Evaluate(domain.Reading{ZoneID: r.ZoneID, FlowRate: r.FlowRate, Pressure: r.Pressure})
		fmt.Printf("Leak: %s drop=%.2f bar flow_anomaly=%.0f m3/h severity=%s customers=%d\n",
			a.ZoneID, a.PressureDrop, a.FlowRateAnomaly, a.Severity, a.AffectedCustomers)
	}
	fmt.Printf("Zones: %d\n", len(readings))
	fmt.Printf("Total consumption: %.0f m3\n", total)
}
