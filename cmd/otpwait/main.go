// Package main is the otpwait CLI. It acquires a number, prints it, waits for
// the OTP sent to it and prints the code, for shell-driven CI jobs. With
// -selftest it sends its own code through Amazon SNS and checks the round
// trip instead. In a local environment without AWS_ENDPOINT the code is only
// logged, for the operator to send by hand.
//
// Exit status: 0 success, 1 configuration error, 2 provider error, 3 timeout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aelexs/sms-otp/internal/config"
	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/errmap"
	"github.com/aelexs/sms-otp/internal/loopback"
	"github.com/aelexs/sms-otp/internal/observability"
	"github.com/aelexs/sms-otp/pkg/otpclient"
)

const serviceName = "otpwait"

type options struct {
	timeout  time.Duration
	phone    string
	selftest bool
	envFile  string
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.DurationVar(&opts.timeout, "timeout", 0, "wait budget (default OTP_TIMEOUT)")
	fs.StringVar(&opts.phone, "phone", "", "E.164 number to watch instead of acquiring one")
	fs.BoolVar(&opts.selftest, "selftest", false, "send a generated code via SNS and verify it arrives")
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errmap.ExitOK
		}
		return errmap.ExitConfiguration
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	err := execute(ctx, opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
	}
	return errmap.ToExitCode(err)
}

func execute(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Output:      stderr,
	})

	telemetry, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "error", err.Error())
		}
	}()

	clientCfg, err := cfg.ClientConfig(logger)
	if err != nil {
		return err
	}
	client, err := otpclient.New(clientCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Cleanup(context.Background()); err != nil {
			logger.Warn("cleanup failed", "error", err.Error())
		}
	}()
	if err := client.Initialize(ctx); err != nil {
		return err
	}

	if opts.selftest {
		sender, err := newSender(ctx, cfg, logger)
		if err != nil {
			return err
		}
		st := loopback.NewSelfTest(client, sender, nil, logger)
		report, err := st.Run(ctx, opts.timeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "selftest ok: %s received %s in %s\n",
			domain.MaskPhone(report.PhoneNumber), report.Received, report.Elapsed.Round(time.Millisecond))
		return nil
	}

	phone := opts.phone
	if phone != "" {
		p, err := domain.NewPhoneNumber(phone)
		if err != nil {
			return err
		}
		phone = p.String()
	} else {
		phone, err = client.GetPhoneNumber(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, phone)
	}

	code, err := client.GetOTPCode(ctx, phone, opts.timeout)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, code)
	return nil
}

// newSender publishes through SNS, except in a local environment with no AWS
// endpoint configured, where the code is only logged for the operator to
// send by hand.
func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (loopback.Sender, error) {
	if cfg.IsLocal() && cfg.AWS.Endpoint == "" {
		logger.InfoContext(ctx, "no AWS endpoint in local environment, self-test code is logged only")
		return loopback.NewLogSender(logger), nil
	}
	snsClient, err := loopback.NewSNSClient(ctx, loopback.SNSConfig{
		Endpoint: cfg.AWS.Endpoint,
		Region:   cfg.AWS.Region,
		Timeout:  domain.BackendHTTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return loopback.NewSNSSender(snsClient), nil
}
