package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/visual-alchemy/blackgate-project/config"
	"github.com/visual-alchemy/blackgate-project/engine"
	"github.com/visual-alchemy/blackgate-project/messaging"
	"github.com/visual-alchemy/blackgate-project/metrics"
	"github.com/visual-alchemy/blackgate-project/session"
	"github.com/visual-alchemy/blackgate-project/store"
	"github.com/visual-alchemy/blackgate-project/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "srtconsole.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("srtconsole", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("srtconsole: database open (%s)", cfg.Database.Driver)

	// Gateway session
	sess, err := session.Open(&cfg.Session, db)
	if err != nil {
		log.Fatalf("open session store: %v", err)
	}
	log.Printf("srtconsole: session store open (%s)", cfg.Session.Driver)

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if msgClient.Enabled() {
		if err := msgClient.Connect(); err != nil {
			log.Printf("srtconsole: messaging connect failed (%v)", err)
		} else {
			log.Printf("srtconsole: messaging connected (%s)", msgClient.Backend())
		}
	}
	defer msgClient.Close()

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.New()
	}

	// Engine
	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Session:   sess,
		MsgClient: msgClient,
		Metrics:   reg,
	})
	eng.Start()
	defer eng.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("srtconsole: web server listening on %s (gateway %s)", addr, cfg.API.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("srtconsole: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("srtconsole: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("srtconsole: web server shutdown: %v", err)
	}
}
