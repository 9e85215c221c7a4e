package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vipnode/asyncrpc/jsonrpc2"
)

// Metrics is a layer recording prometheus metrics for the client stack.
type Metrics struct {
	calls         *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	batches       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	inflight      prometheus.Gauge
}

var _ RPCLayer = &Metrics{}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Method calls by method and outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Method call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_batches_total",
			Help:      "Batches by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_notifications_total",
			Help:      "Outbound notifications by method and outcome.",
		}, []string{"method", "outcome"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_calls_inflight",
			Help:      "Method calls waiting for a result.",
		}),
	}
	for _, c := range []prometheus.Collector{m.calls, m.latency, m.batches, m.notifications, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Wrap(inner RPCService) RPCService {
	return &metricsService{inner: inner, m: m}
}

type metricsService struct {
	inner RPCService
	m     *Metrics
}

func (s *metricsService) Call(ctx context.Context, req *jsonrpc2.Request) Future[MethodResult] {
	start := time.Now()
	s.m.inflight.Inc()
	return Then(s.inner.Call(ctx, req), func(res MethodResult) MethodResult {
		s.m.inflight.Dec()
		s.m.latency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
		s.m.calls.WithLabelValues(req.Method, res.Outcome()).Inc()
		return res
	})
}

func (s *metricsService) Batch(ctx context.Context, batch jsonrpc2.Batch) Future[BatchResult] {
	return Then(s.inner.Batch(ctx, batch), func(res BatchResult) BatchResult {
		outcome := "ok"
		if res.Err != nil {
			outcome = "error"
		}
		s.m.batches.WithLabelValues(outcome).Inc()
		return res
	})
}

func (s *metricsService) Notify(ctx context.Context, n *jsonrpc2.Notification) Future[error] {
	return Then(s.inner.Notify(ctx, n), func(err error) error {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.m.notifications.WithLabelValues(n.Method, outcome).Inc()
		return err
	})
}
