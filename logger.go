package main

import (
	"io"
	"io/ioutil"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	"github.com/vipnode/asyncrpc/client"
	"github.com/vipnode/asyncrpc/middleware"
)

var logger *golog.Logger

// SetLogger overrides the main logger of this command. The logging layer of
// the client stack writes here too.
func SetLogger(l *golog.Logger) {
	logger = l
}

func setSubpackageLoggers(w io.Writer) {
	client.SetLogger(w)
	middleware.SetLogger(w)
}

func init() {
	// Set a default null logger
	SetLogger(golog.New(ioutil.Discard, log.Debug))
}
