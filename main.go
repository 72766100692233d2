package main

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"provisiond/api"
	"provisiond/handlers"
	"provisiond/internal/config"
	"provisiond/services/codes"
	"provisiond/services/graph"
	"provisiond/services/provisioning"
	"provisiond/services/roster"
	"provisiond/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if cfg.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}

	codesSvc, err := codes.NewService(cfg.DataDir)
	if err != nil {
		log.Fatalf("create codes service: %v", err)
	}

	rosterSvc, err := roster.NewService(cfg.DataDir)
	if err != nil {
		log.Fatalf("create roster service: %v", err)
	}

	directory := graph.NewClient(cfg.Graph.TenantID, cfg.Graph.ClientID, cfg.Graph.ClientSecret)
	provisioner := provisioning.NewService(codesSvc, rosterSvc, directory)

	codesHandler := handlers.NewCodesHandler(codesSvc)
	teachersHandler := handlers.NewTeachersHandler(provisioner, rosterSvc)

	router := utils.NewRouter()

	// The unauthenticated endpoints are gated only by confirmation codes, so
	// throttle them per client to slow down code enumeration.
	public := router.NewRoute().Subrouter()
	public.Use(api.RateLimitMiddleware(api.NewIPRateLimiter(rate.Every(6*time.Second), 10)))
	public.HandleFunc("/verify-code", codesHandler.VerifyCode).Methods(http.MethodPost, http.MethodOptions)
	public.HandleFunc("/create-teacher", teachersHandler.CreateTeacher).Methods(http.MethodPost, http.MethodOptions)
	public.HandleFunc("/update-teacher", teachersHandler.UpdateTeacher).Methods(http.MethodPost, http.MethodOptions)

	admin := router.NewRoute().Subrouter()
	admin.Use(api.AdminAuthMiddleware(cfg.AdminToken))
	admin.HandleFunc("/generate-codes", codesHandler.GenerateCodes).Methods(http.MethodPost, http.MethodOptions)
	admin.HandleFunc("/list-codes", codesHandler.ListCodes).Methods(http.MethodGet, http.MethodOptions)
	admin.HandleFunc("/list-accounts", teachersHandler.ListAccounts).Methods(http.MethodGet, http.MethodOptions)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
