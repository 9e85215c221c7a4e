package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vipnode/asyncrpc/client"
	"github.com/vipnode/asyncrpc/internal/fakepeer"
	"github.com/vipnode/asyncrpc/jsonrpc2"
	"github.com/vipnode/asyncrpc/middleware"
	"github.com/vipnode/asyncrpc/transport"
	"github.com/vipnode/asyncrpc/transport/ws/gobwas"
	"github.com/vipnode/asyncrpc/transport/ws/gorilla"
	"golang.org/x/time/rate"
)

func findConnector(endpoint string, websocket string) (transport.Connector, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, ErrExplain{err, "Failed to parse --endpoint."}
	}
	switch u.Scheme {
	case "ws", "wss":
		switch websocket {
		case "gorilla", "":
			return gorilla.Dialer{URL: endpoint}, nil
		case "gobwas":
			return gobwas.Dialer{URL: endpoint}, nil
		}
		return nil, ErrExplain{fmt.Errorf("unknown websocket implementation: %q", websocket), "Use --websocket=gorilla or --websocket=gobwas."}
	case "unix":
		return transport.NetDialer{Network: "unix", Address: u.Path}, nil
	case "tcp":
		return transport.NetDialer{Network: "tcp", Address: u.Host}, nil
	case "fakepeer":
		return fakepeer.Connector(demoPeer), nil
	}
	return nil, ErrExplain{fmt.Errorf("unsupported endpoint scheme: %q", u.Scheme), "Use a ws://, wss://, unix://, tcp:// or fakepeer:// endpoint."}
}

// demoPeer sets up the in-process peer behind fakepeer:// endpoints.
func demoPeer(p *fakepeer.Peer) {
	p.Handle("ping", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return "pong", nil
	})
	p.Handle("echo", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return params, nil
	})
	p.HandleSubscribe("counter_subscribe", "counter_notification", "counter_unsubscribe", 1, 2, 3)
}

func findBuilder(options Options, reg prometheus.Registerer) (client.Builder, error) {
	b := client.NewBuilder()

	idKind, err := jsonrpc2.ParseIDKind(options.IDFormat)
	if err != nil {
		return b, ErrExplain{err, "Use --id-format=number or --id-format=string."}
	}
	admission, err := client.ParseAdmissionPolicy(options.Admission)
	if err != nil {
		return b, ErrExplain{err, "Use --admission=wait or --admission=reject."}
	}
	overflow, err := client.ParseOverflowPolicy(options.Overflow)
	if err != nil {
		return b, ErrExplain{err, "Use --overflow=close, --overflow=drop-oldest or --overflow=drop-newest."}
	}

	stack := middleware.NewRPCBuilder().Layer(middleware.Logger(logger, 1024))
	if reg != nil {
		metrics, err := middleware.NewMetrics(reg, "asyncrpc")
		if err != nil {
			return b, err
		}
		stack = stack.Layer(metrics)
	}
	if options.RateLimit > 0 {
		stack = stack.Layer(middleware.RateLimit(rate.NewLimiter(rate.Limit(options.RateLimit), 1)))
	}

	return b.IDFormat(idKind).
		MaxConcurrentRequests(options.MaxConcurrent).
		MaxBufferCapacityPerSubscription(options.Buffer).
		RequestTimeout(options.Timeout).
		AdmissionPolicy(admission).
		OverflowPolicy(overflow).
		ProtocolErrorHandler(func(err error) {
			logger.Warningf("Protocol error from remote: %s", err)
		}).
		SetRPCMiddleware(stack), nil
}

func connect(ctx context.Context, options Options) (*client.Client, error) {
	connector, err := findConnector(options.Endpoint, options.WebSocket)
	if err != nil {
		return nil, err
	}

	var reg prometheus.Registerer
	if options.Metrics != "" {
		registry := prometheus.NewRegistry()
		reg = registry
		go func() {
			logger.Infof("Serving metrics on: http://%s/metrics", options.Metrics)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(options.Metrics, mux); err != nil {
				logger.Warningf("Metrics server failed: %s", err)
			}
		}()
	}

	b, err := findBuilder(options, reg)
	if err != nil {
		return nil, err
	}

	logger.Infof("Connecting to: %s", options.Endpoint)
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	c, err := b.Build(connectCtx, connector)
	cancel()
	if err != nil {
		return nil, ErrExplain{err, "Failed to connect to the remote. Make sure it is running and the --endpoint is correct."}
	}
	logger.Info("Connected.")
	return c, nil
}
