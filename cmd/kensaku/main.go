// Package main is the Kensaku CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/source"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

var (
	configPath string
	debugFlag  bool
)

// loadConfig loads config from path. When path is the default, a config.yaml in the
// current directory wins so "kensaku server" from a project dir uses that project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kensaku",
		Short:         "Full-text search index for forum content",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(),
		newSearchCmd(),
		newUserContentCmd(),
		newImportCmd(),
		newRebuildCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Config  *config.Config
	Logger  *zap.Logger
	Storage *storage.SQLiteStorage
	Keyword *keyword.BleveIndex
}

// Deps returns source handler dependencies over the opened backends.
func (c *Components) Deps() search.Deps {
	return search.Deps{
		Store:          c.Storage,
		Keyword:        c.Keyword,
		Logger:         c.Logger,
		MinWordLength:  c.Config.Search.MinWordLength,
		BulkFlushBytes: c.Config.Search.BulkFlushBytes,
		GroupPageSize:  c.Config.Search.GroupPageSize,
	}
}

// Handler builds a fresh source handler.
func (c *Components) Handler() (search.SourceHandler, error) {
	return search.NewSourceHandler(c.Config.Search.SourceHandler, c.Deps())
}

// DefaultHandler builds the built-in handler, for operations outside the handler contract.
func (c *Components) DefaultHandler() (*source.Handler, error) {
	return source.New(c.Deps())
}

func (c *Components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

// initializeComponents loads config, builds the logger, and opens storage and the index.
func initializeComponents() (*Components, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved))

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	return &Components{Config: cfg, Logger: logger, Storage: store, Keyword: kw}, nil
}
