// Command memocare-mcp serves reminder management tools over MCP (stdio).
//
// It opens the store named in the memocare config and shares it with a
// running memocare instance. Scheduling and delivery stay in memocare; this
// process only edits reminders.
//
// Usage:
//
//	memocare-mcp -config ./config.yaml
//
// Logs go to stderr because stdout carries the protocol.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"memocare/internal/app"
	"memocare/internal/mcpserver"
	logx "memocare/pkg/logx"
)

func main() {
	var (
		cfgPath string
		level   string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to memocare config (yaml or json)")
	flag.StringVar(&level, "log-level", "info", "stderr log level")
	flag.Parse()

	if err := run(cfgPath, logx.NewWriter(os.Stderr, level)); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string, log logx.Logger) error {
	svc, closer, err := app.OpenReminders(cfgPath, log)
	if err != nil {
		return fmt.Errorf("open reminders: %w", err)
	}
	defer closer.Close()

	return server.ServeStdio(mcpserver.New(svc, log).MCPServer())
}
