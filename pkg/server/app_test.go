package server

import (
	"context"
	"errors"
	"testing"

	"PortfolioPulse/pkg/config"
)

type orderCloser struct {
	name  string
	order *[]string
	err   error
}

func (c orderCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestShutdownClosesInReverseOrder(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	app := New(config.Default(), nil, nil,
		WithCloser("producer", orderCloser{name: "producer", order: &order}),
		WithCloser("collector", orderCloser{name: "collector", order: &order, err: boom}),
		WithCloser("recorder", orderCloser{name: "recorder", order: &order}),
		WithCloser("none", nil),
		WithTradeCollector(nil),
		WithScheduler(nil),
	)

	err := app.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	want := []string{"recorder", "collector", "producer"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestMetricsPath(t *testing.T) {
	cfg := config.Default()
	if got := metricsPath(cfg); got != "/metrics" {
		t.Fatalf("metricsPath = %q", got)
	}
	cfg.Metrics.Enabled = false
	if got := metricsPath(cfg); got != "" {
		t.Fatalf("disabled metricsPath = %q", got)
	}
}
