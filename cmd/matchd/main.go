// Command matchd runs the matching engine: the line-oriented TCP
// protocol on -port, a read-only WebSocket market-data mirror on
// -ws-port, Prometheus metrics on -metrics-port, and a gRPC health
// check on -health-port.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/log"
	"github.com/nats-io/nats.go"
	"golang.org/x/crypto/bcrypt"

	"github.com/lxvenue/matchd/internal/health"
	"github.com/lxvenue/matchd/internal/instrument"
	"github.com/lxvenue/matchd/internal/metrics"
	"github.com/lxvenue/matchd/internal/notify"
	"github.com/lxvenue/matchd/internal/protocol"
	"github.com/lxvenue/matchd/internal/wsfeed"
	"github.com/lxvenue/matchd/internal/zmqfeed"
)

const (
	defaultPort        = 7777
	defaultWSPort      = 7778
	defaultMetricsPort = 9090
	defaultHealthPort  = 9091

	defaultRuntimeStatsInterval = 10 * time.Second
)

func main() {
	port := flag.Int("port", defaultPort, "line protocol TCP port")
	wsPort := flag.Int("ws-port", defaultWSPort, "read-only WebSocket market-data port")
	metricsPort := flag.Int("metrics-port", defaultMetricsPort, "Prometheus /metrics port")
	healthPort := flag.Int("health-port", defaultHealthPort, "gRPC health-check port")
	natsURL := flag.String("nats", nats.DefaultURL, "internal NATS bus URL; empty disables it")
	zmqBind := flag.String("zmq-bind", "", "ZMQ PUB bind address for the trade tape (e.g. tcp://*:5556); empty disables it")
	passkey := flag.String("passkey", "", "AUTH passkey (required)")
	debugSecret := flag.String("debug-secret", "", "DEBUG AUTH secret; empty disables debug commands")
	rejectSelfTrade := flag.Bool("reject-self-trade", false, "reject orders that would match the submitter's own resting order")
	flag.Parse()

	logger := log.Root().New("module", "main")

	if *passkey == "" {
		logger.Crit("-passkey is required")
		os.Exit(1)
	}
	passkeyHash, err := bcrypt.GenerateFromPassword([]byte(*passkey), bcrypt.DefaultCost)
	if err != nil {
		logger.Crit("failed to hash passkey", "error", err)
		os.Exit(1)
	}
	debugSecretHash, err := bcrypt.GenerateFromPassword([]byte(*debugSecret), bcrypt.DefaultCost)
	if err != nil {
		logger.Crit("failed to hash debug secret", "error", err)
		os.Exit(1)
	}

	var nc *nats.Conn
	if *natsURL != "" {
		nc, err = nats.Connect(*natsURL)
		if err != nil {
			logger.Warn("nats connect failed, continuing without internal bus", "error", err)
		} else {
			defer nc.Close()
		}
	}

	m := metrics.New()
	hub := notify.NewHub(nc, m.Registerer())
	mgr := instrument.NewManager(hub, *rejectSelfTrade, m)
	protoServer := protocol.NewServer(mgr, hub, passkeyHash, debugSecretHash)
	healthServer := health.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.CollectRuntimeStats(ctx, defaultRuntimeStatsInterval)

	go func() {
		if err := m.Serve(ctx, fmt.Sprintf(":%d", *metricsPort)); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	go func() {
		if err := healthServer.ListenAndServe(fmt.Sprintf(":%d", *healthPort)); err != nil {
			logger.Error("health server stopped", "error", err)
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", wsfeed.New(hub).Handler())
		addr := fmt.Sprintf(":%d", *wsPort)
		logger.Info("wsfeed server starting", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("wsfeed server stopped", "error", err)
		}
	}()

	if *zmqBind != "" {
		pub, err := zmqfeed.New(hub, *zmqBind)
		if err != nil {
			logger.Error("zmq feed failed to bind, continuing without it", "error", err)
		} else {
			defer pub.Close()
			mgr.OnNewInstrument(pub.SubscribeSymbol)
		}
	}

	listenErrCh := make(chan error, 1)
	go func() {
		healthServer.SetServing(true)
		addr := fmt.Sprintf(":%d", *port)
		listenErrCh <- protoServer.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		healthServer.SetServing(false)
		healthServer.Stop()
		os.Exit(0)

	case err := <-listenErrCh:
		logger.Crit("protocol server failed to bind/listen", "error", err)
		os.Exit(1)
	}
}
