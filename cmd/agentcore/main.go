// Command agentcore wires the runtime's subsystems together and runs the
// Agent Facade against stdin/stdout for local smoke-testing.
//
// Usage:
//
//	agentcore run                     # process requests from stdin, one per line
//	agentcore run --config path.yaml  # specify a config file
//	agentcore version                 # print version information
//
// Grounded on cmd/agentflow/main.go's command dispatch and initLogger, and
// cmd/agentflow/server.go's NewServer for the construct-subsystems-then-start
// shape. Concrete LLM provider wire protocols and MCP transports are out of
// scope for this module (spec.md §1), so this entrypoint registers the
// reference LocalProvider rather than a real vendor SDK, and connects the
// MCP servers listed in the config through the pool's default WebSocket
// transport — a deployment swaps the provider registration for its own.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentcore"
	"github.com/BaSui01/agentcore/adaptation"
	"github.com/BaSui01/agentcore/config"
	"github.com/BaSui01/agentcore/conversation/cache"
	"github.com/BaSui01/agentcore/internal/metrics"
	"github.com/BaSui01/agentcore/llmmanager"
	"github.com/BaSui01/agentcore/mcppool"
	"github.com/BaSui01/agentcore/persistence"
	"github.com/BaSui01/agentcore/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runAgent(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runAgent(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting agentcore",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := buildAgent(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build agent", zap.Error(err))
	}
	defer agent.Shutdown()

	convID := agent.CreateSession("cli")
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("agentcore ready. Type a message and press enter (Ctrl+C to quit).")

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		req := &agentcore.Request{
			Content:  line,
			Mode:     agentcore.ModeChat,
			Metadata: map[string]any{"conversation_id": convID},
		}

		resp, err := agent.Process(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		printResponse(resp)
	}
}

func printResponse(resp *agentcore.Response) {
	switch resp.Status {
	case "completed":
		fmt.Println(resp.Content)
	case "pending_approval":
		fmt.Printf("[approval required, id=%s]\n", resp.ApprovalID)
	case "pending_context":
		fmt.Printf("[more context needed: %v, id=%s]\n", resp.MissingContext, resp.ContextID)
	case "queued":
		fmt.Printf("[queued, task_id=%s]\n", resp.TaskID)
	case "rejected":
		fmt.Println("[request rejected]")
	}
}

// buildAgent constructs every subsystem Dependencies composes and registers
// the reference LocalProvider (one per cfg.LLM.Providers entry) and MCP
// server pool, following the teacher's NewServer "assemble once, hand off
// to the facade" shape.
func buildAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*agentcore.Agent, error) {
	collector := metrics.NewCollector("agentcore", logger)

	llmCfg := &llmmanager.Config{
		Strategy:      llmmanager.RoutingStrategy(cfg.LLM.Strategy),
		ProbeInterval: cfg.LLM.HealthCheckEvery,
		Metrics:       collector,
	}
	llm := llmmanager.New(llmCfg, logger)
	for _, p := range cfg.LLM.Providers {
		llm.Register(referenceProvider(p, logger))
	}
	if len(cfg.LLM.Providers) == 0 {
		llm.Register(referenceProvider(config.ProviderConfig{Name: "local", Caps: []string{"tool_calling"}}, logger))
	}

	mcpCfg := &mcppool.Config{ReconnectDelay: cfg.MCP.ReconnectDelay, MaxReconnects: cfg.MCP.MaxReconnects, Metrics: collector}
	mcp := mcppool.New(mcpCfg, logger)
	if len(cfg.MCP.Servers) > 0 {
		servers := make([]mcppool.ServerConfig, 0, len(cfg.MCP.Servers))
		for _, s := range cfg.MCP.Servers {
			servers = append(servers, mcppool.ServerConfig{Name: s.Name, URL: s.URL, BearerSecret: s.BearerSecret, BearerIssuer: s.BearerIssuer})
		}
		if err := mcp.Initialize(ctx, servers); err != nil {
			return nil, fmt.Errorf("mcp pool init: %w", err)
		}
	}

	store, err := persistence.Open(cfg.Storage.Root, cfg.Storage.Driver, logger)
	if err != nil {
		logger.Warn("persistence store unavailable, adaptation feedback disabled", zap.Error(err))
		store = nil
	}

	var adapt *adaptation.Engine
	if store != nil {
		adapt, err = adaptation.New(store, logger)
		if err != nil {
			logger.Warn("adaptation engine unavailable", zap.Error(err))
			adapt = nil
		}
	}

	var convCache *cache.Cache
	if cfg.Conversation.CacheAddr != "" {
		convCache, err = cache.New(cache.Config{Addr: cfg.Conversation.CacheAddr, DefaultTTL: cfg.Conversation.CacheTTL}, logger)
		if err != nil {
			logger.Warn("conversation cache unavailable, falling back to in-memory only", zap.Error(err))
			convCache = nil
		}
	}

	return agentcore.New(ctx, cfg, agentcore.Dependencies{
		LLM:               llm,
		MCP:               mcp,
		Store:             store,
		Adaptation:        adapt,
		Metrics:           collector,
		ConversationCache: convCache,
		Logger:            logger,
	})
}

// referenceProvider wraps a configured ProviderConfig in a LocalProvider
// that echoes the last request message back, tagged with the provider
// name. A real deployment supplies its
// own llmmanager.Provider (or llmmanager.Responder) per vendor instead.
func referenceProvider(p config.ProviderConfig, logger *zap.Logger) *llmmanager.LocalProvider {
	name := p.Name
	if name == "" {
		name = "local"
	}
	caps := p.Caps
	if len(caps) == 0 {
		caps = []string{"tool_calling"}
	}
	return llmmanager.NewLocalProvider(name, func(_ context.Context, req *llmmanager.ChatRequest) (types.Message, error) {
		var last string
		if len(req.Messages) > 0 {
			last = req.Messages[len(req.Messages)-1].Content
		}
		return types.NewAssistantMessage(fmt.Sprintf("[%s stub] received: %s", name, last)), nil
	}, caps, true, logger)
}

func printVersion() {
	fmt.Printf("agentcore %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`agentcore - local AI agent runtime

Usage:
  agentcore <command> [options]

Commands:
  run       Start an interactive session against stdin/stdout
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>   Path to configuration file (YAML)`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoding := "json"
	if cfg.Environment == "development" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Environment == "development",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller())
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
