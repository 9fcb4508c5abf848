package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// LockMetrics holds the metric instruments for the multi-granularity lock
// manager: how many requests are granted, denied for deadlock prevention,
// or upgraded, and how many granted requests are currently held. Upgrades
// are counted for record and gap locks only; in-place upgrades of a
// table lock do not increment UpgradedCounter.
type LockMetrics struct {
	GrantedCounter  metric.Int64Counter
	DeniedCounter   metric.Int64Counter
	UpgradedCounter metric.Int64Counter
	HeldGauge       metric.Int64UpDownCounter
}

// NewLockMetrics creates and registers the lock manager's metric instruments.
func NewLockMetrics(meter metric.Meter) (*LockMetrics, error) {
	granted, err := meter.Int64Counter(
		"gojodb.lockmgr.requests.granted_total",
		metric.WithDescription("Total number of lock requests granted."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	denied, err := meter.Int64Counter(
		"gojodb.lockmgr.requests.denied_total",
		metric.WithDescription("Total number of lock requests denied for deadlock prevention."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	upgraded, err := meter.Int64Counter(
		"gojodb.lockmgr.requests.upgraded_total",
		metric.WithDescription("Total number of record and gap lock requests that upgraded an existing lock."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	held, err := meter.Int64UpDownCounter(
		"gojodb.lockmgr.locks_held",
		metric.WithDescription("Number of currently granted lock requests."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &LockMetrics{
		GrantedCounter:  granted,
		DeniedCounter:   denied,
		UpgradedCounter: upgraded,
		HeldGauge:       held,
	}, nil
}
