// Package main provides the xhubd daemon: an atomic-swap exchange
// coordinator speaking the xhub wire protocol.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atcsecure/xhub/internal/adminapi"
	"github.com/atcsecure/xhub/internal/adminstore"
	"github.com/atcsecure/xhub/internal/exchange"
	"github.com/atcsecure/xhub/internal/hubconfig"
	"github.com/atcsecure/xhub/internal/walletregistry"
	"github.com/atcsecure/xhub/internal/wireproto"
	"github.com/atcsecure/xhub/internal/xhubnode"
	"github.com/atcsecure/xhub/internal/xhubserver"
	"github.com/atcsecure/xhub/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

const identityFileName = "identity.key"

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.xhub", "Data directory")
		configFile  = flag.String("config", "", "Config file path; only its directory is used, the file read there is always xhub.conf (default: <data-dir>/xhub.conf)")
		listenAddr  = flag.String("listen", "", "Listen address host:port, overrides config")
		adminAddr   = flag.String("admin", "127.0.0.1:8080", "Admin HTTP+WebSocket address")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("xhubd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	configDir := *dataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}
	cfg, err := hubconfig.LoadConfig(configDir)
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	if *listenAddr != "" {
		host, port, perr := splitHostPort(*listenAddr)
		if perr != nil {
			log.Fatal("invalid --listen address", "err", perr)
		}
		cfg.Network.ListenAddress = host
		cfg.Network.ListenPort = port
	}
	cfg.Logging.Level = *logLevel

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("config loaded", "path", hubconfig.ConfigPath(configDir))

	dataPath := expandPath(cfg.Storage.DataDir)

	id, err := loadOrCreateIdentity(dataPath)
	if err != nil {
		log.Fatal("failed to load node identity", "err", err)
	}

	store, err := adminstore.New(&adminstore.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("failed to initialize admin store", "err", err)
	}
	defer store.Close()
	log.Info("admin store initialized", "path", dataPath)

	reg := walletregistry.Load(cfg.Wallets, log)
	if reg.IsEnabled() {
		log.Info("wallet registry loaded", "wallets", len(reg.List()))
	} else {
		log.Info("wallet registry loaded with no tradable wallets, acting as router only")
	}

	ex := exchange.New(reg, log)
	stopReaper := ex.StartReaper(5 * time.Second)
	defer stopReaper()

	node := xhubnode.New(id, ex, reg, log)

	admin := adminapi.New(node, store, log)
	node.SetEventSink(admin.EventSink())
	if err := admin.Start(*adminAddr); err != nil {
		log.Fatal("failed to start admin surface", "err", err)
	}

	listen := fmt.Sprintf("%s:%d", cfg.Network.ListenAddress, cfg.Network.ListenPort)
	srv := xhubserver.New(node, listen, log)
	if err := srv.Start(); err != nil {
		log.Fatal("failed to start xhubserver", "err", err)
	}

	printBanner(log, node, listen, *adminAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	srv.Stop()
	if err := admin.Stop(); err != nil {
		log.Error("error stopping admin surface", "err", err)
	}
	log.Info("goodbye")
}

// loadOrCreateIdentity reads the node's persistent overlay identity from
// <dataDir>/identity.key (hex-encoded), generating and saving a fresh one
// on first run.
func loadOrCreateIdentity(dataDir string) (wireproto.NetworkId, error) {
	path := filepath.Join(dataDir, identityFileName)

	if data, err := os.ReadFile(path); err == nil {
		id, ok := wireproto.NetworkIdFromBytes(mustHexDecode(string(data)))
		if ok {
			return id, nil
		}
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return wireproto.NetworkId{}, fmt.Errorf("create data dir: %w", err)
	}

	id := xhubnode.GenerateID()
	if err := os.WriteFile(path, []byte(hex.EncodeToString(id[:])), 0600); err != nil {
		return wireproto.NetworkId{}, fmt.Errorf("write identity file: %w", err)
	}
	return id, nil
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return b
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, node *xhubnode.Node, listen, adminAddr string) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  xhub exchange coordinator")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Node ID: %s", node.MyID().String())
	log.Infof("  Listening: %s", listen)
	log.Infof("  Admin:     http://%s", adminAddr)
	log.Infof("  Admin WS:  ws://%s/ws", adminAddr)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
