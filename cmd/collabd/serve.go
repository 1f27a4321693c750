package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/peercode/collab/pkg/auth"
	"github.com/peercode/collab/pkg/server"
	"github.com/peercode/collab/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		logLevel   string
		logFormat  string
		backend    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the collaboration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			// Flags win over the file.
			if listen != "" {
				cfg.Listen = listen
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			if backend != "" {
				cfg.Store.Backend = backend
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := buildLogger(cfg)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			verifier, err := buildVerifier(cfg)
			if err != nil {
				return err
			}

			st, err := buildStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(&server.ServerConfig{
				Address:        cfg.Listen,
				WSPath:         cfg.WSPath,
				MaxConnections: cfg.Limits.MaxConnections,
				ConnConfig: &server.ConnConfig{
					HandshakeTimeout: cfg.Limits.HandshakeTimeout,
					ReadTimeout:      cfg.Limits.ReadTimeout,
					WriteTimeout:     cfg.Limits.WriteTimeout,
				},
			}, verifier, st, logger)

			logger.Info("starting collabd",
				"version", version,
				"listen", cfg.Listen,
				"store", cfg.Store.Backend,
				"auth", cfg.Auth.Mode)

			return srv.Run()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: text, json")
	cmd.Flags().StringVar(&backend, "store", "", "Store backend: memory, redis, s3")

	return cmd
}

func buildLogger(cfg *fileConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}

func buildVerifier(cfg *fileConfig) (auth.Verifier, error) {
	switch cfg.Auth.Mode {
	case "jwt":
		return auth.NewJWTVerifier([]byte(cfg.Auth.Secret),
			auth.WithIssuer(cfg.Auth.Issuer),
			auth.WithAudience(cfg.Auth.Audience))
	case "static":
		return auth.NewStaticVerifier(cfg.Auth.Tokens), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

func buildStore(ctx context.Context, cfg *fileConfig) (store.DocStore, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Store.Redis.Addr, err)
		}
		opts := []store.RedisOption{}
		if cfg.Store.Redis.KeyPrefix != "" {
			opts = append(opts, store.WithKeyPrefix(cfg.Store.Redis.KeyPrefix))
		}
		return store.NewRedisStore(client, opts...), nil

	case "s3":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Store.S3.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Store.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		return store.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Store.S3.Bucket, cfg.Store.S3.Prefix)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
