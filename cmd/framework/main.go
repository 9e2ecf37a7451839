// Command framework runs the shared pools with periodic maintenance and a
// metrics endpoint until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vwsim/framework/internal/config"
	"github.com/vwsim/framework/internal/framework"
	"github.com/vwsim/framework/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	writeDefault := flag.String("write-default-config", "", "write the default configuration to this path and exit")
	logLevel := flag.String("log-level", "", "override global.log_level")
	flag.Parse()

	if *writeDefault != "" {
		if err := config.NewDefault().SaveToFile(*writeDefault); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "framework: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg := config.NewDefault()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Global.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Global)
	if err != nil {
		return err
	}

	fw, err := framework.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fw.Start(ctx); err != nil {
		return err
	}
	logger.Info("framework running", utils.Fields{
		"config":       configPath,
		"metrics_port": cfg.Global.MetricsPort,
	})

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fw.Stop(shutdownCtx)
}

func newLogger(global config.GlobalConfig) (*utils.StructuredLogger, error) {
	level, err := utils.ParseLogLevel(global.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := utils.ParseLogFormat(global.LogFormat)
	if err != nil {
		return nil, err
	}

	return utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:         level,
		Output:        os.Stderr,
		Format:        format,
		IncludeCaller: level <= utils.DEBUG,
	}), nil
}
