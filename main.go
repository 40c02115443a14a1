package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "turret.db", "SQLite database path, empty to run without accounts and recording")
	clientDir := flag.String("client", "", "Path to spectator viewer files (optional)")
	natsURL := flag.String("nats", "", "NATS URL for the frame mirror (optional)")
	publicURL := flag.String("public-url", "", "Base URL used in QR links (default: request host)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	dumpSchema := flag.String("dump-schema", "", "Write the wire protocol JSON Schema to this path (- for stdout) and exit")
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal("bad log level", "level", *logLevel)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if *dumpSchema != "" {
		if err := writeSchema(*dumpSchema, buildSchema()); err != nil {
			log.Fatal("dump schema", "err", err)
		}
		return
	}

	var db *DB
	if *dbPath != "" {
		db, err = OpenDB(*dbPath)
		if err != nil {
			log.Fatal("open database", "path", *dbPath, "err", err)
		}
		defer db.Close()
	}

	var mirror FrameMirror
	if *natsURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m, err := ConnectKVMirror(ctx, *natsURL)
		cancel()
		if err != nil {
			log.Fatal("frame mirror", "url", *natsURL, "err", err)
		}
		defer m.Close()
		mirror = m
	}

	hub := NewHub(db, mirror)
	go hub.Run()

	router := SetupRoutes(hub, ServerConfig{ClientDir: *clientDir, PublicURL: *publicURL})

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: router}

	go func() {
		log.Info("server starting", "addr", *addr, "db", *dbPath, "nats", *natsURL != "")
		if *clientDir != "" {
			log.Info("serving viewer files", "dir", *clientDir)
		}
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal("ListenAndServe", "err", err)
		}
	}()

	<-stop
	log.Info("shutting down")
	server.Close()
	hub.Shutdown()
}
