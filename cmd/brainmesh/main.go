package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brainmesh/brainmesh-go/internal/meshnode"
)

const (
	// Application info
	appName    = "BrainMesh"
	appVersion = "0.1.0"
)

func main() {
	// Command-line flags
	var (
		configPath  = flag.String("config", "", "Path to YAML config file (optional)")
		dataDir     = flag.String("data-dir", "", "Data directory (default ~/.brainmesh)")
		listenAddr  = flag.String("listen", "", "Listen address for the HTTP server (default :7777)")
		advertise   = flag.String("advertise", "", "Address other nodes should dial (default: derived)")
		seeds       = flag.String("seeds", "", "Comma-separated bootstrap addresses (host:port)")
		apiSecret   = flag.String("api-secret", "", "Secret key for local API tokens")
		noAuth      = flag.Bool("no-auth", false, "Disable local API authentication (development)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	// Configure logging
	log.SetFlags(log.LstdFlags)
	log.Printf("🚀 Starting %s v%s", appName, appVersion)

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	// Flags override the config file.
	if *dataDir != "" {
		config.DataDir = *dataDir
	}
	if *listenAddr != "" {
		config.Listen = *listenAddr
	}
	if *advertise != "" {
		config.Advertise = *advertise
	}
	if *seeds != "" {
		config.Seeds = splitSeeds(*seeds)
	}
	if *apiSecret != "" {
		config.APISecret = *apiSecret
	}
	if *noAuth {
		config.NoAuth = true
	}

	log.Printf("🔧 Creating mesh node...")
	node, err := meshnode.NewNode(config)
	if err != nil {
		log.Fatalf("❌ Failed to create mesh node: %v", err)
	}

	log.Printf("▶️  Starting mesh node...")
	if err := node.Start(); err != nil {
		log.Fatalf("❌ Failed to start mesh node: %v", err)
	}

	id := node.Identity()
	log.Printf("📋 Node: %s (%s) on %s", id.ShortID(), id.Persona, id.Hostname)
	log.Printf("🔌 Listening on %s, advertising %s", node.ListenAddr(), node.Address())
	if len(config.Seeds) > 0 {
		log.Printf("🌱 Seeds: %s", strings.Join(config.Seeds, ", "))
	}
	log.Printf("✅ %s node started successfully!", appName)
	log.Printf("💡 Use Ctrl+C to shutdown gracefully")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigChan
	log.Printf("🛑 Received signal %v, shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := node.Stop(shutdownCtx); err != nil {
		log.Printf("⚠️  Error during graceful stop: %v", err)
	}
	log.Printf("👋 %s node %s stopped", appName, id.ShortID())
}

func loadConfig(path string) (meshnode.Config, error) {
	if path == "" {
		return meshnode.Config{}, nil
	}
	config, err := meshnode.LoadConfigFile(path)
	if err != nil {
		return meshnode.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func splitSeeds(s string) []string {
	var out []string
	for _, seed := range strings.Split(s, ",") {
		seed = strings.TrimSpace(seed)
		if seed != "" {
			out = append(out, seed)
		}
	}
	return out
}
