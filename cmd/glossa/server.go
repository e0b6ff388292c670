package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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

	"github.com/akarpos/glossa/internal/api"
	"github.com/akarpos/glossa/internal/config"
	"github.com/akarpos/glossa/internal/engine"
	"github.com/akarpos/glossa/internal/generate"
	"github.com/akarpos/glossa/internal/history"
	"github.com/akarpos/glossa/internal/ingest"
	"github.com/akarpos/glossa/internal/pipeline"
	"github.com/akarpos/glossa/internal/retrieval"
	"github.com/akarpos/glossa/internal/storage"
	"github.com/akarpos/glossa/internal/translate"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the glossa server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running glossa server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show glossa system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "glossa.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "glossa version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the API token exists in the local secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if a server is already running via the health
	// endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("glossa is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("glossa is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check local inference engine readiness, pulling missing models.
	eng := engine.NewOllamaEngine(cfg.Ollama.BaseURL)
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the reply pipeline.
	translator := translate.NewClient(cfg.Translator.BaseURL, cfg.Translator.APIKey)
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)

	var vectors retrieval.VectorStore
	switch cfg.VectorStore.Backend {
	case "qdrant":
		q := retrieval.NewQdrantStore(cfg.VectorStore.URL, cfg.VectorStore.Collection, cfg.VectorStore.APIKey, cfg.VectorStore.Dimension)
		if err := q.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("preparing qdrant collection: %w", err)
		}
		slog.Info("vector store ready", "backend", "qdrant", "collection", cfg.VectorStore.Collection)
		vectors = q
	default:
		vectors = retrieval.NewSQLiteStore(store.DB(), cfg.VectorStore.Dimension)
		slog.Info("vector store ready", "backend", "sqlite")
	}

	retriever := retrieval.NewRetriever(embedder, vectors, cfg.Pipeline.TopK, float32(cfg.Pipeline.ScoreThreshold))

	// Generation runs on the local engine unless a hosted model is
	// configured.
	var backend generate.ChatBackend = eng
	genModel := cfg.Ollama.ChatModel
	if cfg.Hosted.Model != "" {
		backend = generate.NewHostedClient(cfg.Hosted.BaseURL, cfg.Hosted.APIKey)
		genModel = cfg.Hosted.Model
		slog.Info("using hosted generation backend", "model", genModel)
	}
	gen := generate.NewGenerator(backend, genModel, time.Duration(cfg.Pipeline.GenTimeoutSec)*time.Second, generate.Params{
		Temperature:  cfg.Pipeline.Temperature,
		DoSample:     cfg.Pipeline.DoSample,
		MaxNewTokens: cfg.Pipeline.MaxNewTokens,
	})

	sessions := history.NewStore(store.DB())
	orch := pipeline.NewOrchestrator(
		translator,
		retriever,
		sessions,
		gen,
		generate.NewPrompt(""),
		pipeline.Langs{
			IndexLang:       cfg.Pipeline.IndexLang,
			GenLang:         cfg.Pipeline.GenLang,
			DefaultUserLang: cfg.Pipeline.DefaultUserLang,
		},
		cfg.Pipeline.HistoryLimit,
	)

	// Build HTTP handler and server.
	appHandler := api.NewAppHandler(api.AppDeps{
		Chat:       orch,
		Sessions:   sessions,
		Store:      store,
		Search:     retriever,
		Vectors:    vectors,
		Token:      apiToken,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Start ingest worker.
	worker := ingest.NewWorker(store, embedder, vectors, ingest.NewChunker(0), 500*time.Millisecond)
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Chat:     orch,
		Sessions: sessions,
		Search:   retriever,
		Store:    store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "glossa listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("glossa is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop glossa (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to glossa (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	// Check the translator.
	trResp, err := client.Get(cfg.Translator.BaseURL + "/languages")
	if err != nil {
		printStatus("Translator", "not running")
	} else {
		trResp.Body.Close()
		printStatus("Translator", "running at %s", cfg.Translator.BaseURL)
	}

	// Show models and languages.
	genModel := cfg.Ollama.ChatModel
	if cfg.Hosted.Model != "" {
		genModel = cfg.Hosted.Model + " (hosted)"
	}
	printStatus("Chat model", "%s", genModel)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Languages", "index=%s gen=%s default=%s",
		cfg.Pipeline.IndexLang, cfg.Pipeline.GenLang, cfg.Pipeline.DefaultUserLang)
	printStatus("Vector store", "%s", cfg.VectorStore.Backend)

	// Show document count if the server is running.
	apiToken, tokenErr := config.GetAPIToken(config.NewKeychain())
	if tokenErr == nil && resp != nil && resp.StatusCode == 200 {
		docsResp, err := apiGet(client, serverURL+"/v1/documents?limit=100", apiToken)
		if err == nil {
			var docs []json.RawMessage
			if json.NewDecoder(docsResp.Body).Decode(&docs) == nil {
				printStatus("Documents", "%s", countLabel(len(docs), 100))
			}
			docsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
