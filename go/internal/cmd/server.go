package main

import (
	"net/http"
	"time"

	"github.com/mcdev12/wordgame/go/internal/notify/wsbridge"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// setupBridgeServer serves the websocket UI bridge on addr.
func setupBridgeServer(bridge *wsbridge.Bridge, addr string) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(bridge.Handler(), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}
