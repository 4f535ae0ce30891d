package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tablekit/apps/server/internal/auth"
	"tablekit/apps/server/internal/config"
	"tablekit/apps/server/internal/gateway"
	"tablekit/apps/server/internal/lobby"
	"tablekit/apps/server/internal/results"
	"tablekit/game"
	"tablekit/games/highcard"
	"tablekit/games/tictactoe"
	"tablekit/transport"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("[Server] Invalid configuration: %v", err)
	}

	authService, err := auth.NewService(cfg)
	if err != nil {
		log.Fatalf("[Server] Failed to init auth service: %v", err)
	}
	defer authService.Close()
	resultsService, err := results.NewService(cfg)
	if err != nil {
		log.Fatalf("[Server] Failed to init results service: %v", err)
	}
	defer resultsService.Close()

	catalog, err := game.NewCatalog(tictactoe.Definition, highcard.Definition)
	if err != nil {
		log.Fatalf("[Server] Invalid game catalog: %v", err)
	}

	ws := transport.DefaultWebSocketOptions()
	ws.ReadLimit = cfg.ReadLimit
	gw := gateway.New(catalog, lobby.Options{
		Results:      resultsService,
		IdleTTL:      cfg.TableIdleTTL,
		VacancyGrace: cfg.VacancyGrace,
	}, gateway.Options{
		Auth:          authService,
		AuthRequired:  cfg.AuthRequired,
		OutboxSize:    cfg.OutboxSize,
		WebSocket:     ws,
		OriginAllowed: cfg.OriginAllowed,
	})
	defer gw.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go gw.Lobby().RunReaper(ctx, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", gw.HandleWebSocket)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	auth.NewHTTPHandler(authService).RegisterRoutes(r)
	results.NewHTTPHandler(authService, resultsService).RegisterRoutes(r)

	if cfg.TCPAddr != "" {
		ln, err := net.Listen("tcp", cfg.TCPAddr)
		if err != nil {
			log.Fatalf("[Server] Failed to listen on %s: %v", cfg.TCPAddr, err)
		}
		log.Printf("[Server] Accepting framed TCP on %s", cfg.TCPAddr)
		go func() {
			if err := gw.ListenTCP(ctx, ln); err != nil {
				log.Printf("[Server] TCP listener stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[Server] Auth mode: %s (required=%v)", cfg.AuthMode, cfg.AuthRequired)
	log.Printf("[Server] Results mode: %s", cfg.ResultsMode)
	log.Printf("[Server] Games: %v", catalog.Names())
	log.Printf("[Server] Starting WebSocket server on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[Server] Failed to start: %v", err)
	}
	log.Printf("[Server] Stopped")
}
