// ABOUTME: Entry point for the agent-relay bridge server and registry CLI
// ABOUTME: Subcommands: serve, register, unregister, agents, seed, health

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"

	"github.com/2389/agent-relay/internal/bridge"
	"github.com/2389/agent-relay/internal/config"
	"github.com/2389/agent-relay/internal/convlog"
	"github.com/2389/agent-relay/internal/registry"
	"github.com/2389/agent-relay/internal/reply"
	"github.com/2389/agent-relay/internal/router"
	"github.com/2389/agent-relay/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                          _                  _
  __ _  __ _  ___ _ __ | |_      _ __ ___| | __ _ _   _
 / _' |/ _' |/ _ \ '_ \| __|____| '__/ _ \ |/ _' | | | |
| (_| | (_| |  __/ | | | ||_____| | |  __/ | (_| | |_| |
 \__,_|\__, |\___|_| |_|\__|    |_|  \___|_|\__,_|\__, |
       |___/                                      |___/
`

// getConfigPath returns the path to the relay config file.
// Priority: AGENT_RELAY_CONFIG env var > ./agent-relay.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AGENT_RELAY_CONFIG"); envPath != "" {
		return envPath
	}
	return "agent-relay.yaml"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: agent-relay <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                        Start the agent bridge server")
		fmt.Println("  register <agent> <endpoint>  Register an agent in the registry")
		fmt.Println("  unregister <agent>           Remove an agent from the registry")
		fmt.Println("  agents                       List registered agents")
		fmt.Println("  seed <roster.toml>           Register every agent in a TOML roster")
		fmt.Println("  health                       Check bridge health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "register":
		err = runRegister(ctx)
	case "unregister":
		err = runUnregister(ctx)
	case "agents":
		err = runAgents(ctx)
	case "seed":
		err = runSeed(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s\n", cfg.Agent.ID)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Registry:  %s\n", cfg.Registry.Backend)
	green.Print("    ▶ ")
	fmt.Printf("Reply:     %s\n", cfg.Reply.Provider)
	fmt.Println()

	logger.Info("starting agent-relay",
		"config", configPath,
		"agent_id", cfg.Agent.ID,
		"http_addr", cfg.Server.HTTPAddr,
		"registry_backend", cfg.Registry.Backend,
	)

	reg, closeReg, err := newRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}
	defer closeReg()

	clog, err := convlog.New(cfg.Agent.ID, cfg.Conversation.LogDir)
	if err != nil {
		return fmt.Errorf("creating conversation log: %w", err)
	}
	if cfg.Conversation.LedgerPath != "" {
		ledger, err := convlog.OpenLedger(cfg.Conversation.LedgerPath)
		if err != nil {
			return fmt.Errorf("opening conversation ledger: %w", err)
		}
		defer ledger.Close()
		clog = clog.WithLedger(ledger)
	}

	generator, improver, err := newGenerator(cfg)
	if err != nil {
		return fmt.Errorf("creating reply generator: %w", err)
	}

	rt, err := router.New(router.Options{
		AgentID:   cfg.Agent.ID,
		Registry:  reg,
		Transport: transport.NewHTTPTransport(cfg.Routing.ForwardTimeout),
		Generator: generator,
		Improver:  improver,
		Log:       clog,
		MaxDepth:  cfg.Routing.MaxDepth,
	})
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}

	// Announce this agent to its peers before accepting traffic.
	if _, err := reg.Register(ctx, cfg.Agent.ID, cfg.Agent.PublicURL); err != nil {
		return fmt.Errorf("registering %s: %w", cfg.Agent.ID, err)
	}
	logger.Info("registered in discovery registry",
		"agent_id", cfg.Agent.ID, "endpoint", cfg.Agent.PublicURL)

	srv := bridge.New(cfg.Agent.ID, cfg.Server.HTTPAddr, rt, reg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRegistry constructs the configured backend. The returned cleanup
// func is a no-op for the file backend.
func newRegistry(ctx context.Context, cfg *config.Config) (registry.Registry, func(), error) {
	switch cfg.Registry.Backend {
	case "redis":
		r, err := registry.NewRedisRegistry(ctx, registry.RedisRegistryConfig{
			Addr:      cfg.Registry.Redis.Addr,
			Password:  cfg.Registry.Redis.Password,
			DB:        cfg.Registry.Redis.DB,
			KeyPrefix: cfg.Registry.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		r, err := registry.NewFileRegistry(cfg.Registry.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil
	}
}

// newGenerator builds the reply generator and, when enabled, the
// outbound message improver backed by the same completion client.
func newGenerator(cfg *config.Config) (reply.Generator, reply.Improver, error) {
	if cfg.Reply.Provider != "completion" {
		return reply.Echo{}, nil, nil
	}

	client, err := reply.NewCompletion(reply.CompletionConfig{
		BaseURL:      cfg.Reply.Completion.BaseURL,
		APIKey:       cfg.Reply.Completion.APIKey,
		Model:        cfg.Reply.Completion.Model,
		MaxTokens:    cfg.Reply.Completion.MaxTokens,
		SystemPrompt: cfg.Reply.Completion.SystemPrompt,
		Timeout:      cfg.Reply.Completion.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	var improver reply.Improver
	if cfg.Reply.Improve {
		improver = func(text string) (string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return client.Generate(ctx, "Rewrite this message to be clear and concise, "+
				"preserving its meaning. Reply with the rewritten message only.\n\n"+text)
		}
	}
	return client, improver, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runRegister(ctx context.Context) error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: agent-relay register <agent_id> <endpoint>")
	}
	agentID, endpoint := os.Args[2], os.Args[3]

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg, closeReg, err := newRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}
	defer closeReg()

	rec, err := reg.Register(ctx, agentID, endpoint)
	if err != nil {
		return fmt.Errorf("registering %s: %w", agentID, err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Registered %s → %s\n", rec.AgentID, rec.Endpoint)
	return nil
}

func runUnregister(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: agent-relay unregister <agent_id>")
	}
	agentID := os.Args[2]

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg, closeReg, err := newRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}
	defer closeReg()

	if err := reg.Unregister(ctx, agentID); err != nil {
		return fmt.Errorf("unregistering %s: %w", agentID, err)
	}

	fmt.Printf("Unregistered %s\n", agentID)
	return nil
}

func runAgents(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg, closeReg, err := newRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}
	defer closeReg()

	records, err := reg.List(ctx)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, rec := range records {
		cyan.Printf("  %s", rec.AgentID)
		fmt.Printf("  %s", rec.Endpoint)
		gray.Printf("  (last seen %s)\n", rec.LastSeen.UTC().Format(time.RFC3339))
	}
	return nil
}

// roster is the TOML seed file format:
//
//	[[agents]]
//	id = "agent_a"
//	endpoint = "http://localhost:6000"
type roster struct {
	Agents []rosterAgent `toml:"agents"`
}

type rosterAgent struct {
	ID       string `toml:"id"`
	Endpoint string `toml:"endpoint"`
}

func runSeed(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: agent-relay seed <roster.toml>")
	}
	rosterPath := os.Args[2]

	var r roster
	if _, err := toml.DecodeFile(rosterPath, &r); err != nil {
		return fmt.Errorf("parsing roster %s: %w", rosterPath, err)
	}
	if len(r.Agents) == 0 {
		return fmt.Errorf("roster %s contains no agents", rosterPath)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg, closeReg, err := newRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}
	defer closeReg()

	green := color.New(color.FgGreen)
	for _, a := range r.Agents {
		if a.ID == "" || a.Endpoint == "" {
			return fmt.Errorf("roster entry missing id or endpoint: %+v", a)
		}
		if _, err := reg.Register(ctx, a.ID, a.Endpoint); err != nil {
			return fmt.Errorf("registering %s: %w", a.ID, err)
		}
		green.Printf("  ✓ %s → %s\n", a.ID, a.Endpoint)
	}

	fmt.Printf("\nSeeded %d agent(s) from %s\n", len(r.Agents), rosterPath)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
