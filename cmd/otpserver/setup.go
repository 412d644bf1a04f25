package main

import (
	"context"
	"fmt"

	"github.com/aelexs/sms-otp/internal/broker/port"
	"github.com/aelexs/sms-otp/internal/server"
	"github.com/aelexs/sms-otp/pkg/otpclient"
)

// setup is the broker composition root. It builds the OTP client from
// config, initializes the backend and registers the HTTP routes.
func setup(ctx context.Context, deps server.SetupDeps) (server.CleanupFunc, error) {
	logger := deps.Logger

	clientCfg, err := deps.Config.ClientConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("otpserver setup: %w", err)
	}
	client, err := otpclient.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("otpserver setup: create client: %w", err)
	}
	if err := client.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("otpserver setup: initialize %s: %w", client.Kind(), err)
	}

	port.NewOTPHandler(client, logger).Register(deps.Mux)

	logger.InfoContext(ctx, "otp broker initialized",
		"provider", string(client.Kind()),
		"session_id", client.SessionID(),
	)

	return client.Cleanup, nil
}
