package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/constants"
	"github.com/racemap/mylaps-forwarder/internal/service_registry"
	"github.com/racemap/mylaps-forwarder/internal/utils"
	"github.com/racemap/mylaps-forwarder/pkg/file"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const defaultConfigFile = "configs/config.yaml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configFile string
	var showVersion bool

	flagSet := pflag.NewFlagSet("mylaps-forwarder", pflag.ContinueOnError)
	flagSet.StringVarP(&configFile, "config", "c", defaultConfigFile, "path to the YAML configuration file")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println(constants.ServerName)
		return nil
	}

	fileClient := file.NewFileService()

	// Load configuration from file, falling back to defaults when the default file is absent
	config, err := loadConfig(configFile, flagSet.Changed("config"), fileClient)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(os.Stdout, config.Logging.Level, config.Logging.Format)
	if err != nil {
		return err
	}
	logger.Info().
		Str("version", constants.ForwarderVersion.String()).
		Str("listen", config.ListenAddress()).
		Str("upstream", config.Upstream.Host).
		Msg("Starting MyLaps forwarder")

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(fileClient, logger)
	if err := serviceRegistry.RegisterServices(config); err != nil {
		return fmt.Errorf("failed to register services: %w", err)
	}
	if err := serviceRegistry.StartServices(); err != nil {
		return err
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stopCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	state, _ := json.Marshal(serviceRegistry.Forwarder().State())
	logger.Info().RawJSON("state", state).Msg("Forwarder state at shutdown")

	if err := serviceRegistry.StopServices(); err != nil {
		return err
	}
	logger.Info().Msg("All services stopped")
	return nil
}

func loadConfig(path string, explicit bool, fileClient file.FileOperations) (*utils.Config, error) {
	exists, err := fileClient.IsFileExists(path)
	if err != nil {
		return nil, fmt.Errorf("failed to check configuration file: %w", err)
	}
	if !exists {
		if explicit {
			return nil, fmt.Errorf("configuration file %s does not exist", path)
		}
		return utils.DefaultConfig(), nil
	}
	config, err := utils.LoadConfig(path, fileClient)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return config, nil
}

func newLogger(out io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
