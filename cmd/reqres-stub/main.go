// Command reqres-stub serves a local copy of the ReqRes users API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/config"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/stub"
	pkglog "github.com/marutisridharjob/cucumber-rest-api-testing/pkg/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("reqres-stub failed: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reqres-stub", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to usercheck configuration file")
	port := fs.Int("port", 0, "Override the listen port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := []config.Option{}
	if *configPath != "" {
		opts = append(opts, config.WithPath(*configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *port != 0 {
		cfg.Stub.Port = *port
	}
	if err := pkglog.SetLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	defer func() {
		if syncErr := pkglog.Sync(); syncErr != nil {
			log.Printf("logger sync failed: %v", syncErr)
		}
	}()

	srv := stub.New(cfg.Stub, stub.WithLogger(pkglog.Logger()))
	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
