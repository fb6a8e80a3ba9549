package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewhub.org/internal/audit"
	"crewhub.org/internal/authz"
	"crewhub.org/internal/httpapi"
	"crewhub.org/internal/obs"
	"crewhub.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("CREWHUB_PG_DSN")
	if dsn == "" {
		log.Fatal("missing CREWHUB_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	catalog := authz.DefaultCatalog()
	engine, err := authz.NewEngine(store, store)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	recorder := audit.Fanout{audit.NewLogRecorder(), store}
	enforcer, err := authz.NewEnforcer(engine, recorder)
	if err != nil {
		log.Fatalf("enforcer: %v", err)
	}

	var verifier *httpapi.TokenVerifier
	if secret := os.Getenv("CREWHUB_TOKEN_SECRET"); secret != "" {
		verifier, err = httpapi.NewTokenVerifier([]byte(secret), os.Getenv("CREWHUB_TOKEN_ISSUER"))
		if err != nil {
			log.Fatalf("token verifier: %v", err)
		}
	} else {
		log.Print("CREWHUB_TOKEN_SECRET not set; requests are trusted as-is")
	}

	svc, err := authz.NewService(store, store, catalog)
	if err != nil {
		log.Fatalf("service: %v", err)
	}
	prov, err := authz.NewProvisioner(store, catalog)
	if err != nil {
		log.Fatalf("provisioner: %v", err)
	}

	api, err := httpapi.New(httpapi.Config{
		Service:     svc,
		Engine:      engine,
		Enforcer:    enforcer,
		Provisioner: prov,
		Verifier:    verifier,
		Ready:       httpapi.ReadyProbe{DB: store.DB()},
		Version:     version,
	})
	if err != nil {
		log.Fatalf("api: %v", err)
	}

	addr := os.Getenv("CREWHUB_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting crewhub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
