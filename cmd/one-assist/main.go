package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/radutopala/oneassist/internal/assistant"
	"github.com/radutopala/oneassist/internal/config"
	"github.com/radutopala/oneassist/internal/embedding"
	"github.com/radutopala/oneassist/internal/history"
	"github.com/radutopala/oneassist/internal/llm"
	"github.com/radutopala/oneassist/internal/mcpclient"
	"github.com/radutopala/oneassist/internal/selection"
	"github.com/radutopala/oneassist/internal/tools"
	"github.com/radutopala/oneassist/internal/vectorstore"
)

const version = "0.1.0"

func main() {
	serversConfig := flag.String("config", "", "path to the external MCP servers file (overrides ONEASSIST_SERVERS_CONFIG)")
	dbPath := flag.String("db", "", "path to the assistant database (overrides ONEASSIST_DB_PATH)")
	dataDir := flag.String("data-dir", "", "directory for persisted indexes (overrides ONEASSIST_DATA_DIR)")
	rebuild := flag.Bool("rebuild", false, "rebuild the tool and message indexes, then exit")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("one-assist " + version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *serversConfig != "" {
		cfg.ServersConfig = *serversConfig
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *rebuild, logger); err != nil {
		logger.Error("Assistant failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, rebuildOnly bool, logger *slog.Logger) error {
	store, err := history.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := tools.NewRegistry(logger)
	if err := tools.RegisterBuiltins(registry); err != nil {
		return err
	}

	clients, err := connectServers(ctx, cfg.ServersConfig, registry, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, client := range clients {
			client.Close()
		}
	}()

	if err := syncCatalog(ctx, store, registry); err != nil {
		return fmt.Errorf("sync tool catalog: %w", err)
	}
	recs, err := store.ActiveTools(ctx)
	if err != nil {
		return fmt.Errorf("load tool catalog: %w", err)
	}
	descs := make([]tools.Descriptor, 0, len(recs))
	for _, rec := range recs {
		descs = append(descs, rec.Descriptor())
	}

	codec, err := buildCodec(ctx, cfg, logger)
	if err != nil {
		return err
	}

	toolStore := vectorstore.NewToolStore(codec, logger)
	msgStore := vectorstore.NewMessageStore(codec, store, logger)

	if rebuildOnly {
		if err := toolStore.Rebuild(ctx, cfg.DataDir, descs); err != nil {
			return fmt.Errorf("rebuild tool index: %w", err)
		}
		if err := msgStore.Rebuild(ctx, cfg.DataDir); err != nil {
			return fmt.Errorf("rebuild message index: %w", err)
		}
		fmt.Printf("Indexes rebuilt: %d tools, %d messages.\n", toolStore.Count(), msgStore.Count())
		return nil
	}

	if err := toolStore.LoadOrBuild(ctx, cfg.DataDir, descs); err != nil {
		return fmt.Errorf("prepare tool index: %w", err)
	}
	if err := msgStore.LoadOrBuild(ctx, cfg.DataDir); err != nil {
		return fmt.Errorf("prepare message index: %w", err)
	}

	client, err := buildLLMClient(cfg, logger)
	if err != nil {
		return err
	}
	health := llm.NewHealth(client, logger)
	evaluator := llm.NewEvaluator(client, health, cfg.MaxTokens, logger)
	responder := llm.NewResponder(client, health, cfg.MaxTokens, cfg.Temperature, logger)

	selector, err := selection.NewSelector(codec, toolStore, msgStore, evaluator, selectionParams(cfg), logger)
	if err != nil {
		return err
	}

	asst := assistant.New(assistant.Deps{
		Selector:  selector,
		Executor:  registry,
		Responder: responder,
		Tools:     registry,
		Store:     store,
		Codec:     codec,
		ToolStore: toolStore,
		MsgStore:  msgStore,
		DataDir:   cfg.DataDir,
		Logger:    logger,
	})

	logger.Info("Assistant ready",
		"tools", toolStore.Count(), "messages", msgStore.Count(),
		"embedder", codec.ModelName(), "model", client.ModelName(),
		"session_id", store.SessionID())

	return repl(ctx, asst)
}

// connectServers dials every enabled external server and registers its
// tools. A server that fails to connect is skipped so the assistant
// still starts with the remaining catalog.
func connectServers(ctx context.Context, path string, registry *tools.Registry, logger *slog.Logger) ([]*mcpclient.Client, error) {
	file, err := config.LoadServers(path)
	if err != nil {
		return nil, err
	}

	var clients []*mcpclient.Client
	for name, server := range file.Servers {
		if !server.Enabled {
			continue
		}

		client, err := mcpclient.Connect(ctx, name, server, logger)
		if err != nil {
			logger.Warn("Skipping external server", "server", name, "error", err)
			continue
		}

		serverTools, err := client.ListTools(ctx)
		if err != nil {
			logger.Warn("Skipping external server", "server", name, "error", err)
			client.Close()
			continue
		}

		registry.RegisterExternalExecutor(name, client)

		category := server.Category
		if category == "" {
			category = "external"
		}
		for _, tool := range serverTools {
			if err := registry.RegisterExternalTool(name, category, tool.Name, tool.Description, tool.InputSchema); err != nil {
				logger.Warn("Skipping external tool", "server", name, "tool", tool.Name, "error", err)
			}
		}

		clients = append(clients, client)
		logger.Info("External server connected", "server", name, "tools", len(serverTools))
	}

	return clients, nil
}

// syncCatalog upserts every registered tool into storage, which assigns
// the stable ids the vector index is keyed by.
func syncCatalog(ctx context.Context, store *history.Store, registry *tools.Registry) error {
	all := registry.ListAll()
	recs := make([]history.ToolRecord, 0, len(all))
	for _, tool := range all {
		recs = append(recs, history.ToolRecord{
			Name:          tool.Name,
			Category:      tool.Category,
			Description:   tool.Description,
			QueryExamples: tool.QueryExamples,
		})
	}
	return store.SyncTools(ctx, recs)
}

func buildCodec(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*embedding.Codec, error) {
	var gen embedding.Generator
	switch cfg.Embedder {
	case "ollama":
		emb := embedding.NewOllamaEmbedder(cfg.EmbedURL, cfg.EmbedModel, cfg.EmbedDimension, logger)
		if !emb.Available(ctx) {
			return nil, fmt.Errorf("embedding server %s is not reachable; start it or set ONEASSIST_EMBEDDER=hash", cfg.EmbedURL)
		}
		gen = emb
	default:
		gen = embedding.NewHashEmbedder(cfg.EmbedDimension, logger)
	}

	return embedding.NewCodec(gen, cfg.EmbedMaxText, cfg.EmbedCacheSize, logger), nil
}

func buildLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	if cfg.LLMTransport == "cli" {
		return llm.NewCommandClient(cfg.LLMCommand, cfg.LLMModel, logger)
	}
	return llm.NewOllamaClient(cfg.LLMURL, cfg.LLMModel, logger), nil
}

func selectionParams(cfg *config.Config) selection.Params {
	return selection.Params{
		DistanceThreshold: cfg.DistanceThreshold,
		MinSemanticScore:  cfg.MinSemanticScore,
		BypassScore:       cfg.BypassScore,
		MinEvalConfidence: cfg.MinEvalConfidence,
		Weights: selection.Weights{
			Semantic:    cfg.WeightSemantic,
			Length:      cfg.WeightLength,
			Description: cfg.WeightDescription,
			Keyword:     cfg.WeightKeyword,
		},
		MaxCandidates:   cfg.MaxCandidates,
		MaxContextPairs: cfg.MaxContextPairs,
		ContextMinSim:   cfg.ContextMinSim,
		ContextMaxAge:   cfg.ContextMaxAge,
		SearchTimeout:   cfg.SearchTimeout,
		EvalTimeout:     cfg.EvalTimeout,
	}
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// repl reads lines until exit, EOF or a signal. The prompt and replies
// go to stdout; logs stay on stderr.
func repl(ctx context.Context, asst *assistant.Assistant) error {
	defer asst.End(context.Background())

	fmt.Println("Local assistant ready. Type 'help' for commands or ask me anything.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			fmt.Println()
			return nil
		}

		reply, done, err := asst.HandleLine(ctx, scanner.Text())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		fmt.Println(reply)
		fmt.Println()
		if done {
			return nil
		}
	}
}
