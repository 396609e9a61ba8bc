// Command redis-server runs the in-memory Redis-compatible server.
//
// Every flag can also be set through the environment as REDIS_<FLAG>, with
// dashes replaced by underscores (e.g. REDIS_LOG_LEVEL=debug). Variables in
// .env and .env.local in the working directory are loaded first.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	redisserver "github.com/raniellyferreira/redis-inmemory-server"
	"github.com/raniellyferreira/redis-inmemory-server/config"
	"github.com/raniellyferreira/redis-inmemory-server/logger"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "redis-server",
		Short: "In-memory Redis-compatible server",
		Long: fmt.Sprintf(`redis-server (v%s)

A small in-memory server speaking the Redis protocol. It can seed its
keyspace from an RDB snapshot and perform the replica handshake with a
primary. Flags may also be set as REDIS_<FLAG> environment variables
(e.g. REDIS_DBFILENAME=dump.rdb).`, redisserver.Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			initConfig(v)
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	defaults := config.Default()
	flags := rootCmd.Flags()
	flags.Int("port", defaults.Port, "TCP port to accept clients on")
	flags.String("bind", defaults.BindHost, "Interface to bind the listener to")
	flags.String("dir", "", "Directory holding the RDB snapshot")
	flags.String("dbfilename", "", "File name of the RDB snapshot inside --dir")
	flags.String("replicaof", "", `Run as a replica of the given primary, written as "host port"`)
	flags.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.LogFormat, "Log format (text, json)")
	flags.String("metrics-addr", "", "Serve /metrics and /healthz on this address (disabled when empty)")
	flags.Duration("idle-timeout", defaults.IdleTimeout, "Close client connections idle for this long (0 disables)")
	flags.Duration("connect-timeout", defaults.ConnectTimeout, "Dial timeout towards the primary")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of redis-server",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "redis-server v%s\n", redisserver.VersionString())
		},
	})

	return rootCmd
}

// initConfig loads env files and environment variables into v
func initConfig(v *viper.Viper) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix("redis")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// buildConfig reads flags and environment into a validated config.Config
func buildConfig(v *viper.Viper) (config.Config, error) {
	cfg := config.Default()
	cfg.Port = v.GetInt("port")
	cfg.BindHost = v.GetString("bind")
	cfg.Dir = v.GetString("dir")
	cfg.DBFilename = v.GetString("dbfilename")
	cfg.LogLevel = v.GetString("log-level")
	cfg.LogFormat = v.GetString("log-format")
	cfg.MetricsAddr = v.GetString("metrics-addr")
	cfg.IdleTimeout = v.GetDuration("idle-timeout")
	cfg.ConnectTimeout = v.GetDuration("connect-timeout")

	if s := v.GetString("replicaof"); s != "" {
		replicaOf, err := config.ParseReplicaOf(s)
		if err != nil {
			return cfg, err
		}
		cfg.ReplicaOf = replicaOf
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// run starts the server and blocks until SIGINT or SIGTERM
func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	if err != nil {
		return err
	}

	srv, err := redisserver.New(
		redisserver.WithConfig(cfg),
		redisserver.WithLogger(redisserver.FromLogger(log)),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down", "reason", context.Cause(ctx))
	return nil
}
