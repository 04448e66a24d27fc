package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"bookhub/internal/auth"
	"bookhub/internal/bookmarks"
	"bookhub/internal/books"
	"bookhub/internal/categories"
	"bookhub/internal/events"
	"bookhub/internal/profile"
	"bookhub/internal/storage"
	"bookhub/pkg/database"
	"bookhub/pkg/utils"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	srvCfg := utils.LoadServerConfig()
	store, err := storage.New(srvCfg.StorageDir, srvCfg.BaseURL)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	router := gin.Default()

	// Optional: avoid “trusted all proxies” warning
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	// Uploaded images are served straight off disk
	router.Static("/storage", srvCfg.StorageDir)

	hub := events.NewHub()
	router.GET("/ws", events.WSHandler(hub))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": hub.Count(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"db":         "ok",
			"ws_clients": hub.Count(),
		})
	})

	// Auth
	authCfg := utils.LoadAuthConfig()
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.TokenTTL,
	}
	authRepo := auth.NewRepo(db)
	authHandler := auth.NewHandler(authRepo, tokenSvc)
	authHandler.RegisterRoutes(router.Group("/"))

	bookRepo := books.NewRepo(db)
	bookHandler := books.NewHandler(bookRepo, store, hub)

	catRepo := categories.NewRepo(db)
	catHandler := categories.NewHandler(catRepo)

	// Public reads still see the caller when a valid token is sent, so
	// browse responses can mark already-bookmarked books.
	public := router.Group("/")
	public.Use(auth.AuthOptional(tokenSvc, authRepo))
	bookHandler.RegisterPublicRoutes(public)
	catHandler.RegisterPublicRoutes(public)

	protected := router.Group("/")
	protected.Use(auth.AuthRequired(tokenSvc, authRepo))
	bookHandler.RegisterProtectedRoutes(protected)
	catHandler.RegisterProtectedRoutes(protected)

	bmRepo := bookmarks.NewRepo(db)
	bmHandler := bookmarks.NewHandler(bmRepo, hub)
	bmHandler.RegisterRoutes(protected)

	profRepo := profile.NewRepo(db)
	profHandler := profile.NewHandler(profRepo, store)
	profHandler.RegisterRoutes(protected)

	httpSrv := &http.Server{
		Addr:    srvCfg.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP API server listening on %s", srvCfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	log.Println("server stopped")
}
