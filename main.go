//	@title			Expense Tracker Auth Gateway API
//	@version		1.0
//	@description	Google sign-in, session tokens and an OAuth 2.0 authorization code + PKCE server for agent clients
//	@BasePath		/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the session token.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/expense-tracker/authgate/internal/bootstrap"
	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/logger"
	"github.com/expense-tracker/authgate/internal/version"

	"go.uber.org/zap"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showVersion {
		version.PrintVersion()
		return
	}

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := bootstrap.Run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
