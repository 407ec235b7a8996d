package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/godspeedsystems/ingestor-sdk/pkg/config"
	"github.com/godspeedsystems/ingestor-sdk/pkg/events"
	"github.com/godspeedsystems/ingestor-sdk/pkg/httpapi"
	"github.com/godspeedsystems/ingestor-sdk/pkg/manager"
	"github.com/godspeedsystems/ingestor-sdk/pkg/plugin"
	"github.com/godspeedsystems/ingestor-sdk/pkg/plugins"
	"github.com/godspeedsystems/ingestor-sdk/pkg/runlog"
	"github.com/godspeedsystems/ingestor-sdk/pkg/store"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

var (
	port    int
	cfg     string
	verbose bool
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion lifecycle server",
	Long:  "Start the HTTP server that manages ingestion tasks, receives webhook callbacks, and evaluates cron schedules on external ticks",
	Run:   runServe,
}

func init() {
	ServeCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides config)")
	ServeCmd.Flags().StringVarP(&cfg, "config", "c", "config.json", "Configuration file path")
	ServeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Bind flags to viper
	if err := viper.BindPFlag("port", ServeCmd.Flags().Lookup("port")); err != nil {
		log.Printf("Failed to bind port flag: %v", err)
	}
	if err := viper.BindPFlag("config", ServeCmd.Flags().Lookup("config")); err != nil {
		log.Printf("Failed to bind config flag: %v", err)
	}
	if err := viper.BindPFlag("verbose", ServeCmd.Flags().Lookup("verbose")); err != nil {
		log.Printf("Failed to bind verbose flag: %v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	configData, err := config.LoadConfig(cfg)
	if err != nil {
		log.Printf("Failed to load config from %s, using defaults: %v", cfg, err)
		configData = config.DefaultConfig()
	}
	if port != 0 {
		configData.Server.Port = port
	}

	st, err := store.NewStore(&configData.Storage)
	if err != nil {
		log.Printf("Failed to initialize storage: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("Failed to close storage: %v", err)
		}
	}()

	registry := plugin.NewRegistry()
	plugins.RegisterBuiltins(registry)

	providers := webhook.NewProviderSet(map[string]webhook.Provider{
		"git-crawler":         webhook.NewGitHubProvider(),
		"googledrive-crawler": webhook.NewDriveProvider(),
	})

	bus := events.NewBus()
	if configData.RunLog.Enabled {
		runlog.NewLogger(configData.RunLog.Dir).Attach(bus)
	}

	mgr := manager.New(st, registry, providers, bus,
		manager.WithCronWindow(configData.CronWindow()))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	httpapi.NewHandlers(mgr).RegisterRoutes(e)

	addr := fmt.Sprintf(":%d", configData.Server.Port)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("Server stopped: %v", err)
		}
	}()
	log.Printf("Ingestion server listening on %s (storage: %s)", addr, configData.Storage.Type)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Failed to shut down server gracefully: %v", err)
	}
}
