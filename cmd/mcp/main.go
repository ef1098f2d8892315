package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/osvaldoandrade/comfyq/internal/mcpserver"
	"github.com/osvaldoandrade/comfyq/pkg/app"
	"github.com/osvaldoandrade/comfyq/pkg/config"
)

func main() {
	cfg, err := config.LoadConfigOptional(os.Getenv("COMFYQ_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] invalid config:", err)
		os.Exit(1)
	}

	// stdout carries the protocol.
	application, err := app.NewApplication(cfg, app.WithLogOutput(os.Stderr))
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] init app:", err)
		os.Exit(1)
	}

	s := mcpserver.New(application.Tools, application.Invocations, application.Logger)
	application.Logger.Info("mcp server on stdio", "tools", len(application.Tools.Tools()))
	serveErr := server.ServeStdio(s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = application.Invocations.Wait(ctx)
	if application.TracingShutdown != nil {
		_ = application.TracingShutdown(ctx)
	}
	_ = application.Close()

	if serveErr != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] mcp server:", serveErr)
		os.Exit(1)
	}
}
