package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/vipnode/asyncrpc/client"
)

func runSubscribe(ctx context.Context, c *client.Client, options Options, w io.Writer) error {
	args := options.Subscribe.Args
	var sub *client.Subscription
	var err error
	if options.Subscribe.Plain {
		sub, err = c.SubscribeToMethod(ctx, args.Method)
	} else {
		sub, err = c.Subscribe(ctx, args.Method, options.Subscribe.Unsubscribe, parseParams(args.Params)...)
	}
	if err != nil {
		return err
	}
	logger.Infof("Subscribed: %s", sub.ID())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stop on ctrl+c
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	for n := 0; options.Subscribe.Count == 0 || n < options.Subscribe.Count; n++ {
		raw, err := sub.Next(ctx)
		var subErr *client.SubscriptionError
		if errors.As(err, &subErr) {
			fmt.Fprintf(w, "error: %s\n", subErr.Data)
			continue
		}
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n", raw)
	}

	unsubCtx, unsubCancel := context.WithTimeout(context.Background(), connectTimeout)
	defer unsubCancel()
	return sub.Unsubscribe(unsubCtx)
}
