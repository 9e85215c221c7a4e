package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vipnode/asyncrpc/client"
)

// parseParams turns command line arguments into positional params. Valid JSON
// is sent as is, anything else as a string.
func parseParams(args []string) []interface{} {
	params := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if json.Valid([]byte(arg)) {
			params = append(params, json.RawMessage(arg))
			continue
		}
		params = append(params, arg)
	}
	return params
}

func runCall(ctx context.Context, c *client.Client, options Options, w io.Writer) error {
	var result json.RawMessage
	params := parseParams(options.Call.Args.Params)
	if err := c.Call(ctx, &result, options.Call.Args.Method, params...); err != nil {
		return err
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	var out bytes.Buffer
	if err := json.Indent(&out, result, "", "  "); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, out.String())
	return err
}

func runNotify(ctx context.Context, c *client.Client, options Options) error {
	params := parseParams(options.Notify.Args.Params)
	return c.Notify(ctx, options.Notify.Args.Method, params...)
}
