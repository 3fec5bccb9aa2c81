// Command usercheck runs the users listing feature against a live or stubbed
// ReqRes API and exits non-zero when any step fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/apiclient"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/config"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/contract"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/steps"
	pkglog "github.com/marutisridharjob/cucumber-rest-api-testing/pkg/log"
	"github.com/marutisridharjob/cucumber-rest-api-testing/pkg/metrics"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, nil); err != nil {
		log.Fatalf("usercheck failed: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *zap.SugaredLogger) error {
	fs := flag.NewFlagSet("usercheck", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to usercheck configuration file")
	metricsOut := fs.String("metrics-out", "", "Write Prometheus metrics to this textfile after the run")
	withContract := fs.Bool("contract", false, "Also run the @contract scenarios against the users API contract")
	featuresPath := fs.String("features", "", "Run the feature files at this path instead of the bundled users feature")
	format := fs.String("format", "", "godog formatter for scenario output (pretty, progress, cucumber, junit)")
	tags := fs.String("tags", "", "godog tag expression selecting scenarios")
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
	if *withContract {
		cfg.Contract.Enabled = true
	}
	if *metricsOut != "" {
		cfg.Metrics.Textfile = *metricsOut
	}
	if *featuresPath != "" {
		cfg.Features.Path = *featuresPath
	}
	if *format != "" {
		cfg.Features.Format = *format
	}
	if *tags != "" {
		cfg.Features.Tags = *tags
	}
	if cfg.Features.Tags == "" && !cfg.Contract.Enabled {
		cfg.Features.Tags = "~@contract"
	}

	if logger == nil {
		if err := pkglog.SetLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("configure logger: %w", err)
		}
		logger = pkglog.Logger()
		defer func() {
			if syncErr := pkglog.Sync(); syncErr != nil {
				log.Printf("logger sync failed: %v", syncErr)
			}
		}()
	}

	registry := metrics.NewRegistry(metrics.WithoutDefaultCollectors())
	clientOpts := []apiclient.Option{
		apiclient.WithUserAgent(cfg.API.UserAgent),
		apiclient.WithHeader("x-api-key", cfg.API.APIKey),
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(registry),
	}
	client := apiclient.New(clientOpts...)

	ctx, cancel := context.WithTimeout(ctx, cfg.API.Timeout.AsDuration())
	defer cancel()

	scenarioOpts := []steps.Option{steps.WithLogger(logger)}
	if cfg.Contract.Enabled {
		validator, err := contract.Load(ctx, cfg.Contract.Path)
		if err != nil {
			return fmt.Errorf("load contract: %w", err)
		}
		scenarioOpts = append(scenarioOpts, steps.WithContract(validator))
	}

	target := steps.Target{
		BaseURL:     cfg.API.BaseURL,
		UsersPath:   cfg.API.UsersPath,
		FixturePath: cfg.Fixture.Path,
		IgnoreKeys:  cfg.Fixture.IgnoreKeys,
	}
	newScenario := func() *steps.Scenario {
		return steps.NewScenario(client, target, scenarioOpts...)
	}

	suiteOpts := []steps.SuiteOption{
		steps.WithFormat(cfg.Features.Format),
		steps.WithTags(cfg.Features.Tags),
		steps.WithOutput(stdout),
	}
	if cfg.Features.Path != "" {
		suiteOpts = append(suiteOpts, steps.WithFeatures(nil, cfg.Features.Path))
	}

	logger.Infow("running features",
		"baseURL", cfg.API.BaseURL,
		"path", cfg.API.UsersPath,
		"features", cfg.Features.Path,
		"tags", cfg.Features.Tags,
	)
	runErr := steps.NewSuite(newScenario, suiteOpts...).Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := registry.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Errorw("write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
			if runErr == nil {
				return fmt.Errorf("write metrics: %w", err)
			}
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Infow("features passed")
	return nil
}
