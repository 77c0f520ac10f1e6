// Command convwatch mirrors chat conversation pages into a local snapshot
// store and serves the panel API.
//
// Usage:
//
//	convwatch -config convwatch.yaml                  # observe configured pages and serve
//	convwatch -url https://chatgpt.com/c/<id>         # observe a single page (stdout sink)
//	convwatch -html saved.html -page-url <url>        # scan saved HTML and print the snapshot
//	convwatch -config convwatch.yaml -mcp-stdio       # also serve MCP tools on stdin/stdout
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/convwatch/convwatch"
	"github.com/hazyhaar/convwatch/convwatch/conversation"
)

func main() {
	configPath := flag.String("config", "", "path to convwatch.yaml config file")
	singleURL := flag.String("url", "", "observe a single conversation URL (stdout sink)")
	htmlPath := flag.String("html", "", "scan a saved HTML page and print its snapshot")
	pageURL := flag.String("page-url", "", "URL the -html page was saved from")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve MCP tools over stdin/stdout")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *htmlPath != "":
		err = runHTML(ctx, logger, *configPath, *htmlPath, *pageURL)
	case *singleURL != "":
		err = runSingle(ctx, logger, *configPath, *singleURL, *mcpStdio)
	case *configPath != "":
		err = runConfig(ctx, logger, *configPath, *mcpStdio)
	default:
		fmt.Fprintln(os.Stderr, "usage: convwatch -config <file> | -url <url> | -html <file> -page-url <url>")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("convwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*convwatch.Config, error) {
	if path == "" {
		return convwatch.DefaultConfig(), nil
	}
	cfg, err := convwatch.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runHTML(ctx context.Context, logger *slog.Logger, configPath, path, pageURL string) error {
	if pageURL == "" {
		return errors.New("-html requires -page-url")
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.Pages = nil

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := convwatch.New(cfg, logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	p, err := w.AttachHTML("", f, pageURL)
	if err != nil {
		return err
	}
	res, err := p.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if res.Snapshot == nil {
		return fmt.Errorf("no conversation turns found in %s", path)
	}

	data, err := conversation.MarshalSnapshot(res.Snapshot)
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return nil
}

func runSingle(ctx context.Context, logger *slog.Logger, configPath, u string, mcpStdio bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.Pages = []convwatch.PageConfig{{URL: u}}
	cfg.Sinks = []convwatch.SinkConfig{{Type: "stdout"}}
	return serve(ctx, logger, cfg, mcpStdio)
}

func runConfig(ctx context.Context, logger *slog.Logger, path string, mcpStdio bool) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	return serve(ctx, logger, cfg, mcpStdio)
}

func serve(ctx context.Context, logger *slog.Logger, cfg *convwatch.Config, mcpStdio bool) error {
	sinks := convwatch.SinksFromConfig(cfg.Sinks, logger)
	w, err := convwatch.New(cfg, logger, sinks...)
	if err != nil {
		return err
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "convwatch", Version: "1.0.0"}, nil)
	w.RegisterMCP(mcpSrv)

	if mcpStdio {
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("convwatch: mcp stdio", "error", err)
			}
		}()
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		h := w.Handler()
		mux := http.NewServeMux()
		mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
		mux.Handle("/", h)

		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			logger.Info("convwatch: http listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("convwatch: http", "error", err)
			}
		}()
	}

	<-ctx.Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("convwatch: http shutdown", "error", err)
		}
	}
	return nil
}
