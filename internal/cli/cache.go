package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mosaicviz/mosaic/pkg/cache"
	"github.com/mosaicviz/mosaic/pkg/errors"
)

// newCacheCmd creates the cache management command.
func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the thumbnail download cache",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default mosaic.toml if present)")

	cmd.AddCommand(newCachePathCmd(&configPath))
	cmd.AddCommand(newCacheClearCmd(&configPath))
	return cmd
}

// newCachePathCmd prints where the file cache lives.
func newCachePathCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			switch cfg.Cache.Backend {
			case "redis":
				addr := cfg.Cache.RedisAddr
				if addr == "" {
					addr = "localhost:6379"
				}
				fmt.Fprintln(cmd.OutOrStdout(), "redis://"+addr)
			case "none":
				fmt.Fprintln(cmd.OutOrStdout(), "(caching disabled)")
			default:
				dir, err := cfg.Cache.cacheDir()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dir)
			}
			return nil
		},
	}
}

// newCacheClearCmd removes every cached download.
func newCacheClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c, err := cfg.Cache.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			switch backend := c.(type) {
			case *cache.FileCache:
				if err := backend.Clear(); err != nil {
					return err
				}
				logger.Info("cache cleared")
			case *cache.RedisCache:
				n, err := backend.Clear(ctx)
				if err != nil {
					return err
				}
				logger.Info("cache cleared", "entries", n)
			case *cache.NullCache:
				logger.Info("caching is disabled; nothing to clear")
			default:
				return errors.New(errors.ErrCodeUnsupported, "cache backend does not support clearing")
			}
			return nil
		},
	}
}
