// Package connector wires the configuration, secret codec, state
// store, Salesforce client, host client and action surface into one
// runnable unit.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/eliziario/sf-connector/internal/actions"
	"github.com/eliziario/sf-connector/internal/bridge"
	"github.com/eliziario/sf-connector/internal/config"
	"github.com/eliziario/sf-connector/internal/host"
	"github.com/eliziario/sf-connector/internal/salesforce"
	"github.com/eliziario/sf-connector/internal/secrets"
	"github.com/eliziario/sf-connector/internal/state"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// App identity inside the host's REST handler URL scheme.
const (
	AppDirName = "salesforce"
	AppID      = "6259fb96-ae5c-4f5e-a8df-0c6f2d6375f2"
)

type Connector struct {
	config  *config.Config
	log     *logrus.Logger
	store   *state.Store
	codec   secrets.Codec
	sf      *salesforce.Client
	host    *host.Client
	actions *actions.Service
	server  *http.Server
	assetID string
}

func New(cfg *config.Config, assetID string, log *logrus.Logger) (*Connector, error) {
	if err := state.ValidateAssetID(assetID); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := secrets.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret codec: %w", err)
	}

	stateDir, err := cfg.StateDir()
	if err != nil {
		return nil, err
	}
	store, err := state.NewStore(stateDir)
	if err != nil {
		return nil, err
	}

	sf := salesforce.New(salesforce.Options{
		AssetID:      assetID,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Username:     cfg.Auth.Username,
		Password:     cfg.Auth.Password,
		Sandbox:      cfg.Auth.Sandbox,
		Store:        store,
		Codec:        codec,
		Log:          log,
	})

	hostClient := host.New(host.Options{
		BaseURL:   cfg.Host.BaseURL,
		VerifyTLS: cfg.Host.VerifyTLS,
		Log:       log,
	})

	service := &actions.Service{
		Config:     cfg,
		SF:         sf,
		Store:      store,
		Codec:      codec,
		Host:       hostClient,
		Sink:       hostClient,
		Log:        log,
		AssetID:    assetID,
		AppDirName: AppDirName,
		AppID:      AppID,
	}

	return &Connector{
		config:  cfg,
		log:     log,
		store:   store,
		codec:   codec,
		sf:      sf,
		host:    hostClient,
		actions: service,
		assetID: assetID,
	}, nil
}

// HandleAction executes one named action and returns its terminal
// result.
func (c *Connector) HandleAction(ctx context.Context, actionID string, params actions.Params) *actions.Result {
	return c.actions.Handle(ctx, actionID, params)
}

// Run serves the authorization bridge endpoints until the context is
// canceled.
func (c *Connector) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	b := bridge.New(bridge.Options{
		Store: c.store,
		Codec: c.codec,
		Log:   c.log,
	})
	b.Register(engine, c.config.Bridge.HandlerRoot)

	c.server = &http.Server{
		Addr:    c.config.Bridge.Address,
		Handler: engine,
	}

	c.log.Infof("Starting authorization bridge on %s%s", c.config.Bridge.Address, c.config.Bridge.HandlerRoot)

	errChan := make(chan error, 1)
	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	select {
	case <-ctx.Done():
		c.log.Info("Shutting down authorization bridge")
		if err := c.server.Shutdown(context.Background()); err != nil {
			c.log.WithError(err).Error("Error shutting down bridge server")
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

func (c *Connector) Close() error {
	if c.server != nil {
		if err := c.server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("failed to shut down bridge server: %w", err)
		}
	}
	return nil
}

// FormatResult renders an action result for the invoking process.
func FormatResult(result *actions.Result) (string, error) {
	out, err := json.MarshalIndent(map[string]any{
		"status":  result.Status.String(),
		"message": result.Message,
		"data":    result.Data,
		"summary": result.Summary,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(out), nil
}
