package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weaveworld/goweave/pkg/boltstore"
	"github.com/weaveworld/goweave/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confPath := flag.String("config", envDefault("WEAVE_CONFIG", ""), "Path to YAML config file (env: WEAVE_CONFIG)")
	addr := flag.String("addr", envDefault("WEAVE_ADDR", ""), "Listen address, overrides config (env: WEAVE_ADDR)")
	dbPath := flag.String("db", envDefault("WEAVE_DB", ""), "Path to bbolt world database, overrides config (env: WEAVE_DB)")
	noWatch := flag.Bool("nowatch", os.Getenv("WEAVE_NOWATCH") == "true", "Disable live config reload (env: WEAVE_NOWATCH)")
	flag.Parse()

	log.Printf("Welcome to %s", server.VersionString())

	conf := server.DefaultConfig()
	if *confPath != "" {
		loaded, err := server.LoadConfig(*confPath)
		if err != nil {
			log.Fatalf("server: %v", err)
		}
		conf = loaded
	}
	if *addr != "" {
		conf.Addr = *addr
	}
	if *dbPath != "" {
		conf.DBPath = *dbPath
	}
	if conf.DBPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: server -config <config.yaml> [-addr :4001] [-db world.db]")
		fmt.Fprintln(os.Stderr, "A world database must be named by -db, WEAVE_DB, or the config file.")
		os.Exit(2)
	}

	store, err := boltstore.Open(conf.DBPath)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	defer store.Close()
	log.Printf("server: world database %s", conf.DBPath)

	app := server.NewApp(store, conf)
	if err := app.AttachJournal(); err != nil {
		log.Fatalf("server: %v", err)
	}

	if *confPath != "" && !*noWatch {
		watcher, err := server.WatchConfig(*confPath, app.SetConfig)
		if err != nil {
			log.Printf("server: config watch disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	done := make(chan struct{})
	go app.Run(done)

	websrv := server.NewWebServer(app, conf)
	errs := make(chan error, 1)
	go func() { errs <- websrv.Start() }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Printf("server: received %v, shutting down", sig)
	case err := <-errs:
		if err != nil {
			log.Printf("server: web server failed: %v", err)
		}
	}

	close(done)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := websrv.Stop(ctx); err != nil {
		log.Printf("server: shutdown: %v", err)
	}
	if app.Journal != nil {
		app.Journal.Close()
	}
}
