package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// TxnMetrics holds the metric instruments for the transaction manager:
// how many transactions begin, commit, or abort, and how long they run.
type TxnMetrics struct {
	BeginCounter    metric.Int64Counter
	CommitCounter   metric.Int64Counter
	AbortCounter    metric.Int64Counter
	ActiveGauge     metric.Int64UpDownCounter
	DurationHistory metric.Int64Histogram
}

// NewTxnMetrics creates and registers the transaction manager's metric instruments.
func NewTxnMetrics(meter metric.Meter) (*TxnMetrics, error) {
	begin, err := meter.Int64Counter(
		"gojodb.txn.begin_total",
		metric.WithDescription("Total number of transactions started."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	commit, err := meter.Int64Counter(
		"gojodb.txn.commit_total",
		metric.WithDescription("Total number of transactions committed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	abort, err := meter.Int64Counter(
		"gojodb.txn.abort_total",
		metric.WithDescription("Total number of transactions aborted."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter(
		"gojodb.txn.active",
		metric.WithDescription("Number of transactions currently in progress."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Int64Histogram(
		"gojodb.txn.duration",
		metric.WithDescription("Wall-clock duration of a transaction from begin to commit/abort."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &TxnMetrics{
		BeginCounter:    begin,
		CommitCounter:   commit,
		AbortCounter:    abort,
		ActiveGauge:     active,
		DurationHistory: duration,
	}, nil
}
