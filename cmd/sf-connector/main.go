package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eliziario/sf-connector/internal/actions"
	"github.com/eliziario/sf-connector/internal/config"
	"github.com/eliziario/sf-connector/internal/logging"
	"github.com/eliziario/sf-connector/pkg/connector"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (default: ~/.config/sf-connector/config.yaml)")
		assetID    = flag.String("asset", "", "Asset identifier (alphanumeric)")
		actionID   = flag.String("action", "", "Action to run (e.g. test_connectivity, on_poll)")
		paramsJSON = flag.String("params", "", "Action parameters as a JSON object")
		serve      = flag.Bool("serve", false, "Serve the authorization bridge endpoints")
	)
	flag.Parse()

	if *assetID == "" {
		fmt.Fprintln(os.Stderr, "Error: -asset is required")
		flag.Usage()
		os.Exit(1)
	}
	if !*serve && *actionID == "" {
		fmt.Fprintln(os.Stderr, "Error: one of -action or -serve is required")
		flag.Usage()
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	conn, err := connector.New(cfg, *assetID, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing connector: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *serve {
		if err := conn.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("Bridge server failed")
			os.Exit(1)
		}
		return
	}

	params := actions.Params{}
	if *paramsJSON != "" {
		if err := json.Unmarshal([]byte(*paramsJSON), &params); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing -params: %v\n", err)
			os.Exit(1)
		}
	}

	result := conn.HandleAction(ctx, *actionID, params)

	out, err := connector.FormatResult(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)

	if result.Status == actions.StatusFailed {
		os.Exit(1)
	}
}
