package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classbridge/internal/app"
	"classbridge/internal/config"
)

// FUNCTIONAL DISCOVERY: Main entry point with comprehensive error handling and signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// configPath prefers the -config flag over CLASSBRIDGE_CONFIG_FILE.
func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CLASSBRIDGE_CONFIG_FILE")
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(args []string) error {
	flags := flag.NewFlagSet("classbridge", flag.ContinueOnError)
	file := flags.String("config", "", "path to a JSON config file")
	port := flags.Int("port", 0, "HTTP port, overrides config")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// STEP 1: Load configuration with precedence (flags > file > env > defaults)
	cfg, err := config.LoadConfigWithPrecedence(configPath(*file))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 3: Run until SIGINT/SIGTERM; Run performs the graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	return nil
}
