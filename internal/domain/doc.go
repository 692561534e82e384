// Package domain models gas distribution network telemetry and leak alerts.
//
// # Data Source
//
// Each network zone (a district such as "Tongelre" or "Strijp") has a pressure
// regulating station that reports one reading per poll. Readings arrive from
// the SCADA bridge over Kafka or MQTT as flat JSON:
//
//	{"zone_id":"Tongelre","flow_rate":1150,"pressure":3.2,
//	 "temperature":12.5,"total_consumption":61234.5,
//	 "timestamp":"2024-11-04T09:15:00Z"}
//
// Only the latest reading per zone is kept. A newer reading replaces the
// previous one; there is no history.
//
// # Units
//
//	flow_rate          m³/h, never negative
//	pressure           bar (gauge), distribution grid operates around 4.0
//	temperature        °C
//	total_consumption  m³, cumulative meter value, never negative
//
// # Pressure Band
//
// A zone is "normal" when its pressure lies inside the configured closed
// interval [low, high], by default [3.5, 5.0] bar. A reading below the low
// bound is treated as a possible leak. Over-pressure is reported through
// IsNormal but does not raise a leak alert.
//
// # Severity Classification
//
// The pressure drop is measured against the nominal pressure (default 4.0 bar)
// and mapped onto half-open intervals:
//
//	drop < 0.2          low
//	0.2 ≤ drop < 0.5    medium
//	0.5 ≤ drop < 1.0    high
//	drop ≥ 1.0          critical
//
// Info is reserved for alerts created by operators and is never produced by
// [Classify].
//
// # Alert Lifecycle
//
// An alert is created unresolved and may be resolved exactly once. A zone has
// at most one unresolved alert at a time; resolved alerts are retained for
// audit and do not block new detections in the same zone.
package domain
