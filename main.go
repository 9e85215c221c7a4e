package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/vipnode/asyncrpc/client"
	"github.com/vipnode/asyncrpc/jsonrpc2"
)

// Version of the binary, assigned during build.
var Version string = "dev"

var connectTimeout = time.Second * 10

// Options contains the flag options
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging." no-ini:"true"`
	Version bool   `long:"version" description:"Print version and exit." no-ini:"true"`

	Endpoint  string `long:"endpoint" description:"Remote endpoint: ws://, wss://, unix://, tcp:// or fakepeer://" default:"fakepeer://"`
	WebSocket string `long:"websocket" description:"Websocket implementation. (gorilla|gobwas)" default:"gorilla"`

	IDFormat      string        `long:"id-format" description:"Request id encoding. (number|string)" default:"number"`
	MaxConcurrent int           `long:"max-concurrent" description:"Maximum number of calls in flight." default:"256"`
	Buffer        int           `long:"buffer" description:"Notifications buffered per subscription." default:"1024"`
	Timeout       time.Duration `long:"timeout" description:"Timeout of each call." default:"60s"`
	Admission     string        `long:"admission" description:"Calls beyond the limit wait or fail. (wait|reject)" default:"wait"`
	Overflow      string        `long:"overflow" description:"Full subscription buffers close or drop. (close|drop-oldest|drop-newest)" default:"close"`
	RateLimit     float64       `long:"rate-limit" description:"Maximum calls per second, 0 for unlimited."`
	Metrics       string        `long:"metrics" description:"Serve prometheus metrics on this address, such as localhost:9090."`

	Call struct {
		Args struct {
			Method string   `positional-arg-name:"method" required:"yes"`
			Params []string `positional-arg-name:"params" description:"Positional params; JSON values, anything else is sent as a string."`
		} `positional-args:"yes"`
	} `command:"call" description:"Call a method and print the result."`

	Notify struct {
		Args struct {
			Method string   `positional-arg-name:"method" required:"yes"`
			Params []string `positional-arg-name:"params"`
		} `positional-args:"yes"`
	} `command:"notify" description:"Send a notification."`

	Subscribe struct {
		Unsubscribe string `long:"unsubscribe" description:"Method to call with the subscription id when done."`
		Count       int    `long:"count" description:"Exit after this many notifications, 0 runs until interrupted."`
		Plain       bool   `long:"plain" description:"Listen for plain notifications named method instead of calling it."`
		Args        struct {
			Method string   `positional-arg-name:"method" required:"yes"`
			Params []string `positional-arg-name:"params"`
		} `positional-args:"yes"`
	} `command:"subscribe" description:"Subscribe and print every notification."`
}

const usage = `Examples:
* Call a method on a local node over websockets:
  $ asyncrpc --endpoint ws://localhost:8546 call eth_blockNumber

* Follow new blocks:
  $ asyncrpc --endpoint ws://localhost:8546 subscribe --unsubscribe eth_unsubscribe eth_subscribe newHeads

* Try it against the built-in fake peer:
  $ asyncrpc subscribe --count 3 counter_subscribe

Options can also be set in an INI file, by default at
$XDG_CONFIG_HOME/vipnode/asyncrpc/config.ini or at the path in $ASYNCRPC_CONFIG.
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

func subcommand(ctx context.Context, cmd string, options Options, w io.Writer) error {
	c, err := connect(ctx, options)
	if err != nil {
		return err
	}
	defer c.Close()

	switch cmd {
	case "call":
		return runCall(ctx, c, options, w)
	case "notify":
		return runNotify(ctx, c, options)
	case "subscribe":
		return runSubscribe(ctx, c, options, w)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.LongDescription = usage

	configPath := findConfigFile(os.Getenv("ASYNCRPC_CONFIG"))
	if err := loadConfig(parser, configPath, os.Getenv("ASYNCRPC_CONFIG") != ""); err != nil {
		exit(1, "Failed to load config %s: %s\n", configPath, err)
	}

	_, err := parser.Parse()
	if err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		setSubpackageLoggers(logWriter)
	}

	cmd := parser.Active.Name
	err = subcommand(context.Background(), cmd, options, os.Stdout)
	if err == nil {
		return
	}

	if errors.Is(err, io.EOF) {
		exit(3, "Connection closed.\n")
	}
	exit(2, "%s failed: %s\n", cmd, explain(err))
}

// explain annotates err with a hint for the user.
func explain(err error) error {
	var explained ErrExplain
	var closed *client.ConnectionClosedError
	var transportErr *client.TransportError
	var decodeErr *jsonrpc2.DecodeError
	var netErr net.Error
	var rpcErr interface{ ErrorCode() int }

	switch {
	case errors.As(err, &explained):
		// All good.
		return err
	case errors.Is(err, client.ErrRequestTimeout):
		return ErrExplain{err, `The remote did not answer in time. Raise the limit with --timeout="..."`}
	case errors.Is(err, client.ErrMaxConcurrentRequests):
		return ErrExplain{err, `Too many calls in flight. Raise --max-concurrent or use --admission=wait.`}
	case errors.As(err, &closed), errors.As(err, &transportErr), errors.As(err, &netErr):
		return ErrExplain{err, `Disconnected from the remote unexpectedly. Could be a connectivity issue or the remote is down. Try again?`}
	case errors.As(err, &decodeErr):
		return ErrExplain{err, `The remote sent a malformed message.`}
	case errors.As(err, &rpcErr):
		switch rpcErr.ErrorCode() {
		case jsonrpc2.ErrCodeMethodNotFound:
			return ErrExplain{err, `The remote does not support this method.`}
		case jsonrpc2.ErrCodeInvalidParams:
			return ErrExplain{err, `The remote rejected the params. JSON values are sent as is, anything else as a string.`}
		}
		return ErrExplain{err, fmt.Sprintf(`The remote returned an error (code %d).`, rpcErr.ErrorCode())}
	}
	return ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation. Please open an issue at https://github.com/vipnode/asyncrpc`, err)}
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}

func (err ErrExplain) Unwrap() error {
	return err.Cause
}
