// Package main is the entrypoint for the OTP broker service.
// The broker holds one OTP client session and serves it over HTTP JSON.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/sms-otp/internal/config"
	"github.com/aelexs/sms-otp/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	return server.Run(ctx, server.Params{
		Name:           "otpserver",
		PortFromConfig: func(cfg *config.Config) int { return cfg.Server.HTTPPort },
		Setup:          setup,
	}, nil)
}
