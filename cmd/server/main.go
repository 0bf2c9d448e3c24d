package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/swingai/backend/internal/analysis"
	"github.com/swingai/backend/internal/api"
	"github.com/swingai/backend/internal/config"
	"github.com/swingai/backend/internal/history"
	"github.com/swingai/backend/internal/storage"
	"github.com/swingai/backend/internal/upload"
	"github.com/swingai/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Resolve config relative to the executable so the binary is relocatable
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, "swingai.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Embedded mode means the frontend build is bundled into the binary
	embeddedMode := web.HasEmbeddedFiles()

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	analyzer := analysis.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.APIKey,
		time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second)

	histStore, err := history.NewStore(cfg.GetHistoryDir())
	if err != nil {
		fmt.Printf("Failed to open history database: %v\n", err)
		os.Exit(1)
	}
	defer histStore.Close()

	uploadMgr := upload.NewManager(fileStore, analyzer, cfg.Analysis.MaxConcurrent)
	uploadMgr.SetHistory(histStore)

	h := api.NewHandler(fileStore, uploadMgr, analyzer, histStore, Version)
	wsHandler := api.NewWebSocketHandler(h)

	// Background housekeeping for settled items and abandoned transfers
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			uploadMgr.CleanupOldItems(time.Duration(cfg.Processing.ItemTTLMinutes) * time.Minute)
			wsHandler.CleanupStaleSessions(time.Duration(cfg.Processing.ItemTTLMinutes) * time.Minute)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/progress") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/upload") ||
				strings.Contains(path, "/ws/") ||
				strings.Contains(path, "/progress") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout",
	}))

	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return c.Request().Header.Get("Accept") == "text/event-stream"
			},
		}))
	}

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		if embeddedMode {
			origins := strings.Split(cfg.Server.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
			if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
				origins = []string{"*"}
			}
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: origins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			}))
		} else {
			// Development mode - only allow local dev servers
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{
					"http://localhost:5173", "http://127.0.0.1:5173",
					"http://localhost:3000", "http://127.0.0.1:3000",
				},
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			}))
		}
	}

	// API Routes
	apiGroup := e.Group("/api")

	// Health and model status (proxied from the analysis service)
	apiGroup.GET("/health", h.HandleHealth)
	apiGroup.GET("/models", h.HandleModels)

	// WebSocket upload endpoint
	apiGroup.GET("/ws/uploads", wsHandler.HandleWebSocket)

	// Video uploads
	apiGroup.POST("/uploads", h.HandleUploadVideo)
	apiGroup.POST("/uploads/batch", h.HandleUploadBatch)
	apiGroup.POST("/uploads/chunk", h.HandleUploadChunk)
	apiGroup.POST("/uploads/complete", h.HandleCompleteUpload)
	apiGroup.POST("/uploads/url", h.HandleAnalyzeURL)

	// Pipeline items
	apiGroup.GET("/items", h.HandleListItems)
	apiGroup.GET("/items/:id", h.HandleGetItem)
	apiGroup.DELETE("/items/:id", h.HandleRemoveItem)
	apiGroup.GET("/items/:id/progress", h.HandleItemProgressStream)
	apiGroup.GET("/items/:id/result/msgpack", h.HandleItemResultMsgpack)

	// Stored files
	apiGroup.GET("/files/recent", h.HandleRecentFiles)

	// Analysis history
	apiGroup.GET("/history/recent", h.HandleHistoryRecent)
	apiGroup.GET("/history/monthly", h.HandleHistoryMonthly)
	apiGroup.GET("/history/trend", h.HandleHistoryTrend)

	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			fmt.Println("Serving embedded frontend from binary")
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	mode := "Development"
	if embeddedMode {
		mode = "Single-Binary (Embedded)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           SwingAI Analysis Server                         ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Analyzer:  %-46s║\n", cfg.Analysis.BaseURL)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}

	e.Logger.Fatal(e.StartServer(s))
}
