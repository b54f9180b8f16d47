package middleware

import (
	"context"
	"errors"
	"testing"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/scopewise/internal/metrics"
)

func TestMetricsInterceptor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	failing := MetricsInterceptor(m)(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("scope missing"))
	})
	ok := MetricsInterceptor(m)(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return connect.NewResponse(&struct{}{}), nil
	})

	req := connect.NewRequest(&struct{}{})
	if _, err := failing(context.Background(), req); connect.CodeOf(err) != connect.CodeNotFound {
		t.Fatalf("expected the handler error to pass through, got %v", err)
	}
	ok(context.Background(), req)
	ok(context.Background(), req)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "scopewise_rpc_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "code" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if counts["ok"] != 2 || counts["not_found"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestLoggingInterceptorPassesThrough(t *testing.T) {
	want := connect.NewError(connect.CodeInvalidArgument, errors.New("bad"))
	next := LoggingInterceptor(nil)(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, want
	})
	if _, err := next(context.Background(), connect.NewRequest(&struct{}{})); err != want {
		t.Errorf("got %v, want %v", err, want)
	}
}
