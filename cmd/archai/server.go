package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/archai/internal/api"
	"github.com/kalambet/archai/internal/config"
	"github.com/kalambet/archai/internal/engine"
	"github.com/kalambet/archai/internal/extractor"
	"github.com/kalambet/archai/internal/imagegen"
	"github.com/kalambet/archai/internal/ollama"
	"github.com/kalambet/archai/internal/pipeline"
	"github.com/kalambet/archai/internal/proxy"
	"github.com/kalambet/archai/internal/rationale"
	"github.com/kalambet/archai/internal/session"
	"github.com/kalambet/archai/internal/storage"
	"github.com/kalambet/archai/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the archai server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running archai server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archai system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

// pidFile records the server's process ID in the data directory so that
// `archai stop` can signal it.
type pidFile string

func pidFileIn(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "archai.pid"))
}

func (p pidFile) write() error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func (p pidFile) read() (int, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (p pidFile) remove() { os.Remove(string(p)) }

// serverUp reports whether something answers the health endpoint on port.
func serverUp(port int) (bool, int) {
	c := &http.Client{Timeout: 2 * time.Second}
	resp, err := c.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		return false, 0
	}
	resp.Body.Close()
	return true, resp.StatusCode
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// chatModelFor picks the configured chat model for the detected backend.
func chatModelFor(eng engine.Engine, cfg config.Config) string {
	if _, ok := eng.(*engine.OpenAIEngine); ok {
		return cfg.OpenAI.ChatModel
	}
	return cfg.Ollama.ChatModel
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "archai version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice. A live health endpoint means another
	// instance owns the port.
	pid := pidFileIn(cfg.Storage.DataDir)
	if up, _ := serverUp(cfg.Server.Port); up {
		if other, err := pid.read(); err == nil {
			return fmt.Errorf("archai is already running (PID %d)", other)
		}
		return fmt.Errorf("port %d is already serving archai", cfg.Server.Port)
	}
	if err := pid.write(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer pid.remove()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Chat engine for extraction, critique and rationale.
	eng, err := engine.Detect(ctx, engine.DetectConfig{
		Backend:       cfg.Engine.Backend,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
	})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	chatModel := chatModelFor(eng, cfg)
	if cfg.Pipeline.Extractor == "llm" || cfg.Pipeline.RefinementPasses > 0 {
		if err := engine.EnsureReady(ctx, eng, chatModel, os.Stderr); err != nil {
			return err
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	var ext extractor.Extractor
	script := extractor.MustDefaultScript()
	if cfg.Pipeline.Extractor == "rules" {
		ext = extractor.NewRuleExtractor(script)
	} else {
		ext = extractor.NewLLMExtractor(eng, chatModel)
	}

	painter := proxy.NewClientWithBaseURL(cfg.Proxy.OpenRouterAPIKey, cfg.Proxy.BaseURL)
	if ok, err := painter.SupportsImages(ctx, cfg.Proxy.ImageModel); err != nil {
		slog.Warn("could not check image model capabilities", "model", cfg.Proxy.ImageModel, "error", err)
	} else if !ok {
		printWarning("model %s does not advertise image output", cfg.Proxy.ImageModel)
	}

	// A nil interface, not a nil *Refiner, disables refinement.
	var refiner pipeline.PlanRefiner
	if cfg.Pipeline.RefinementPasses > 0 {
		critic := imagegen.NewCritic(eng, chatModel)
		refiner = imagegen.NewRefiner(critic, painter, cfg.Proxy.ImageModel,
			imagegen.WithPasses(cfg.Pipeline.RefinementPasses),
			imagegen.WithPassHook(func(pass, total int) {
				slog.Info("refinement pass started", "pass", pass, "total", total)
			}),
		)
	}
	designer := pipeline.NewDesigner(
		imagegen.NewGenerator(painter, cfg.Proxy.ImageModel),
		refiner,
		imagegen.NewInterior(painter, cfg.Proxy.ImageModel),
	)

	mgr := session.NewManager(session.Deps{
		Store:     store,
		Extractor: ext,
		Designer:  designer,
		Explainer: rationale.NewExplainer(eng, chatModel),
		Script:    script,
	})
	if n, err := mgr.Recover(ctx); err != nil {
		return fmt.Errorf("recovering sessions: %w", err)
	} else if n > 0 {
		slog.Warn("settled sessions interrupted by the last shutdown", "count", n)
	}

	pollInterval, err := time.ParseDuration(cfg.Worker.PollInterval)
	if err != nil {
		slog.Warn("invalid worker poll interval, using default 500ms", "value", cfg.Worker.PollInterval, "error", err)
		pollInterval = 500 * time.Millisecond
	}
	w := worker.NewWorker(store, mgr, session.JobTypes, pollInterval)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewAppHandler(api.AppDeps{
			Sessions: mgr,
			Token:    apiToken,
		}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "archai listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		w.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Sessions: mgr, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			// The MCP host closed stdin; nothing is left to serve.
			stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pid := pidFileIn(cfg.Storage.DataDir)
	n, err := pid.read()
	if err != nil {
		return fmt.Errorf("archai is not running (no PID file at %s)", pid)
	}
	proc, err := os.FindProcess(n)
	if err == nil {
		err = proc.Signal(syscall.SIGTERM)
	}
	if err != nil {
		// The process is gone; the PID file is stale.
		pid.remove()
		return fmt.Errorf("stopping archai (PID %d): %w", n, err)
	}
	printSuccess("Sent stop signal to archai (PID %d)", n)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	up, code := serverUp(cfg.Server.Port)
	switch {
	case !up:
		printStatus("Server", "stopped")
	case code == http.StatusOK:
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		printStatus("Server", "error (HTTP %d)", code)
	}

	if v, err := ollama.New(cfg.Ollama.BaseURL).Version(context.Background()); err != nil {
		printStatus("Ollama", "not reachable at %s", cfg.Ollama.BaseURL)
	} else {
		printStatus("Ollama", "%s at %s", v, cfg.Ollama.BaseURL)
	}

	printStatus("Engine", "%s", cfg.Engine.Backend)
	printStatus("Chat model", "%s (ollama), %s (openai)", cfg.Ollama.ChatModel, cfg.OpenAI.ChatModel)
	printStatus("Image model", "%s", cfg.Proxy.ImageModel)
	printStatus("Extractor", "%s", cfg.Pipeline.Extractor)
	printStatus("Refinement", "%d pass(es)", cfg.Pipeline.RefinementPasses)
	if cfg.Proxy.OpenRouterAPIKey == "" {
		printWarning("OpenRouter API key is not set")
	}

	if code == http.StatusOK {
		if n, err := countSessions(); err == nil {
			printStatus("Sessions", "%d", n)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countSessions() (int, error) {
	c, err := newAPIClient()
	if err != nil {
		return 0, err
	}
	r, err := c.get(context.Background(), "/sessions")
	if err != nil {
		return 0, err
	}
	var sessions []session.Summary
	if err := decodeJSON(r, &sessions); err != nil {
		return 0, err
	}
	return len(sessions), nil
}
