package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/cli"
	"github.com/hyperjump/kensaku/internal/contenttype"
	"github.com/hyperjump/kensaku/internal/importer"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/watcher"
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server and the import spool watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initializeComponents()
			if err != nil {
				return err
			}
			defer c.Close()
			logger := c.Logger

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if dir := c.Config.Import.SpoolDirectory; dir != "" {
				spool := watcher.NewWatcher(dir, c.Config.Import.Extensions, spoolImporter(c), watcher.WithLogger(logger))
				if err := spool.Start(ctx); err != nil {
					return fmt.Errorf("failed to start spool watcher: %w", err)
				}
				defer spool.Stop()
			}

			srv := server.NewServer(c.Config.Search.SourceHandler, c.Deps(), c.Config, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("Shutting down...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

// spoolImporter imports each spool file through its own handler.
func spoolImporter(c *Components) watcher.ProcessFunc {
	return func(ctx context.Context, path string) error {
		h, err := c.Handler()
		if err != nil {
			return err
		}
		res, err := importer.New(h, c.Storage, importer.WithLogger(c.Logger)).ImportFile(ctx, path)
		if err != nil {
			return err
		}
		c.Logger.Info("spool import complete",
			zap.String("path", path),
			zap.String("run_id", res.RunID),
			zap.Int("items", res.Total()),
			zap.Int("skipped", res.Skipped))
		return nil
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// parseConstraints turns name=value flags into constraints. Comma-separated values become lists.
func parseConstraints(pairs []string) (search.Constraints, error) {
	out := make(search.Constraints, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid constraint %q; use name=value", pair)
		}
		if strings.Contains(value, ",") {
			var list []string
			for _, v := range strings.Split(value, ",") {
				if v = strings.TrimSpace(v); v != "" {
					list = append(list, v)
				}
			}
			out[name] = list
			continue
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func newSearchCmd() *cobra.Command {
	var (
		contentType string
		order       string
		group       bool
		titleOnly   bool
		maxResults  int
		constraints []string
		serverURL   string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "search [flags] <query>",
		Short: "Search indexed content",
		Long: `Search indexed content. The query is all remaining arguments joined by spaces.

Words prefixed with + are required, - are excluded, and "quoted phrases" match exactly.
Words shorter than the minimum word length and common words are dropped with a warning.`,
		Example: `  kensaku search hello world
  kensaku search --type post --group "+garden -weeds"
  kensaku search --constraint user=3 --constraint node=1,2 --order date tips`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cons, err := parseConstraints(constraints)
			if err != nil {
				return err
			}
			if titleOnly {
				cons[search.ConstraintTitleOnly] = true
			}
			req := &server.SearchRequest{
				Query:             buildSearchQuery(args),
				Type:              contentType,
				Constraints:       cons,
				Order:             order,
				GroupByDiscussion: group,
				MaxResults:        maxResults,
			}

			var response *models.SearchResponse
			if serverURL != "" {
				// Use the HTTP API when a server holds the index lock.
				response, err = searchViaHTTP(serverURL, req)
			} else {
				response, err = searchLocal(cmd.Context(), req)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
		},
	}
	f := cmd.Flags()
	f.StringVar(&contentType, "type", "", "content type handler ("+strings.Join(contenttype.Names(), ", ")+"); empty searches everything")
	f.StringVar(&order, "order", "", "result order (date)")
	f.BoolVar(&group, "group", false, "collapse results by discussion (with --type)")
	f.BoolVar(&titleOnly, "title-only", false, "match titles only")
	f.IntVar(&maxResults, "max-results", 0, "maximum results (0 = configured default)")
	f.StringArrayVar(&constraints, "constraint", nil, "constraint as name=value; repeatable")
	f.StringVar(&serverURL, "server", "", "server URL (empty = open the index directly)")
	f.StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func searchLocal(ctx context.Context, req *server.SearchRequest) (*models.SearchResponse, error) {
	c, err := initializeComponents()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	h, err := c.Handler()
	if err != nil {
		return nil, err
	}
	sink := search.NewSearcher()
	h.SetSearcher(sink)
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = c.Config.Search.DefaultMaxResults
	}

	start := time.Now()
	var results []models.ContentRef
	if req.Type != "" {
		th, err := contenttype.Get(req.Type)
		if err != nil {
			return nil, err
		}
		results, err = h.SearchType(ctx, th, req.Query, req.Constraints, req.Order, req.GroupByDiscussion, maxResults)
		if err != nil {
			return nil, err
		}
	} else {
		results, err = h.SearchGeneral(ctx, req.Query, req.Constraints, req.Order, maxResults)
		if err != nil {
			return nil, err
		}
	}
	return &models.SearchResponse{
		Results:   results,
		Errors:    sink.Errors(),
		Warnings:  sink.Warnings(),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     req.Query,
	}, nil
}

func searchViaHTTP(serverURL string, req *server.SearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var response models.SearchResponse
	if err := decodeResponse(resp, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func decodeResponse(resp *http.Response, v any) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newUserContentCmd() *cobra.Command {
	var (
		maxDate int64
		limit   int
		output  string
	)
	cmd := &cobra.Command{
		Use:   "user-content <user-id>",
		Short: "List a user's indexed content, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			c, err := initializeComponents()
			if err != nil {
				return err
			}
			defer c.Close()
			h, err := c.Handler()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = c.Config.Search.DefaultMaxResults
			}
			refs, err := h.ExecuteSearchByUserID(cmd.Context(), userID, maxDate, limit)
			if err != nil {
				return err
			}
			return cli.WriteUserContent(cmd.OutOrStdout(), userID, refs, format)
		},
	}
	cmd.Flags().Int64Var(&maxDate, "max-date", 0, "only content dated before this unix time (0 = no limit)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0 = configured default)")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func newImportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "import <export.jsonl>...",
		Short: "Import legacy JSON-lines exports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			c, err := initializeComponents()
			if err != nil {
				return err
			}
			defer c.Close()
			for _, path := range args {
				h, err := c.Handler()
				if err != nil {
					return err
				}
				res, err := importer.New(h, c.Storage, importer.WithLogger(c.Logger)).ImportFile(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				if err := cli.WriteImportResult(cmd.OutOrStdout(), res, format); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func newRebuildCmd() *cobra.Command {
	var pageSize int
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-index every stored record into the full-text index",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initializeComponents()
			if err != nil {
				return err
			}
			defer c.Close()
			h, err := c.DefaultHandler()
			if err != nil {
				return err
			}
			n, err := h.Rebuild(cmd.Context(), pageSize)
			if err != nil {
				return fmt.Errorf("rebuild failed after %d records: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %d record(s)\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 1000, "records read per page")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		serverURL string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record, document, and disk usage counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			var st *cli.Status
			if serverURL != "" {
				st, err = statusViaHTTP(serverURL)
			} else {
				st, err = statusLocal(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (empty = open the index directly)")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func statusLocal(ctx context.Context) (*cli.Status, error) {
	c, err := initializeComponents()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	records, err := c.Storage.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	docs, err := c.Keyword.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	st := &cli.Status{
		Records:       records,
		Documents:     docs,
		SourceHandler: c.Config.Search.SourceHandler,
		ContentTypes:  contenttype.Names(),
	}
	if fp, err := storage.MeasureFootprint(c.Config.Storage.DatabasePath, c.Config.Storage.BleveIndexPath); err == nil {
		total := fp.Total()
		st.DiskUsageBytes = &total
	}
	return st, nil
}

func statusViaHTTP(serverURL string) (*cli.Status, error) {
	u, err := url.JoinPath(serverURL, "/api/v1/status")
	if err != nil {
		return nil, err
	}
	resp, err := http.Get(u)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var st cli.Status
	if err := decodeResponse(resp, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Kensaku",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kensaku version %s\n", version)
		},
	}
}
