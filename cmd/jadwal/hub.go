package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/cache"
	"github.com/smpn3pacet/jadwal/internal/hub"
)

var hubCmd = &cobra.Command{
	Use:     "hub",
	GroupID: "advanced",
	Short:   "Serve the document to realtime clients",
	Long: `Start a hub: a remote store for the realtime backend. The hub keeps the
document in a SQLite file and pushes every accepted change to the other
connected clients.

Endpoints:
  GET  /               Current document (fetch)
  POST /               Save a section or export tables
  GET  /ws             Websocket with snapshot and update frames
  GET  /tables/{name}  Last exported table
  GET  /health         Health check
  GET  /metrics        Prometheus metrics

Example usage:
  jadwal hub                      # Start on default port 8080
  jadwal hub --port 9000          # Start on custom port

Point clients at it with:
  jadwal config set-endpoint http://localhost:8080
and backend: realtime in config.yaml.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		dbPath, _ := cmd.Flags().GetString("db")

		if dbPath == "" {
			cfg, _, err := loadConfig()
			if err != nil {
				fatalf("%v", err)
			}
			dbPath = filepath.Join(cfg.DataDir, "hub.db")
		}

		store, err := cache.Open(dbPath)
		if err != nil {
			fatalf("failed to open hub database: %v", err)
		}

		server := hub.NewServer(&hub.Config{
			Port:   port,
			Store:  store,
			Logger: newLogger("hub"),
		})
		if err := server.Load(context.Background()); err != nil {
			_ = store.Close()
			fatalf("failed to load hub state: %v", err)
		}

		if err := server.Start(); err != nil {
			_ = store.Close()
			fatalf("failed to start hub: %v", err)
		}

		fmt.Printf("Hub started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Database: %s\n", dbPath)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down hub...")
		stopErr := server.Stop()
		closeErr := store.Close()
		if stopErr != nil {
			fatalf("during shutdown: %v", stopErr)
		}
		if closeErr != nil {
			fatalf("failed to close hub database: %v", closeErr)
		}

		fmt.Println("Hub stopped")
	},
}

func init() {
	hubCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	hubCmd.Flags().String("db", "", "Hub database file (default: <data_dir>/hub.db)")

	rootCmd.AddCommand(hubCmd)
}
