// The console binary wires the whole assistant stack together: SQLite log
// store, CSV ingestion watcher, the two MCP-backed assistants, the
// Prometheus endpoint, and a stdin REPL for talking to them.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eel-hour/Unified-Security-Assistant/internal/assistant"
	"github.com/eel-hour/Unified-Security-Assistant/internal/config"
	"github.com/eel-hour/Unified-Security-Assistant/internal/ingest"
	"github.com/eel-hour/Unified-Security-Assistant/internal/limit"
	"github.com/eel-hour/Unified-Security-Assistant/internal/llm"
	"github.com/eel-hour/Unified-Security-Assistant/internal/mcp"
	"github.com/eel-hour/Unified-Security-Assistant/internal/metrics"
	"github.com/eel-hour/Unified-Security-Assistant/internal/store"
	"github.com/eel-hour/Unified-Security-Assistant/pkg/logging"
)

const clientVersion = "0.1.0"

// errQuit signals a user-requested shutdown through the errgroup.
var errQuit = errors.New("quit requested")

func main() {
	var (
		handshakeTimeout time.Duration
		callTimeout      time.Duration
	)
	flag.DurationVar(&handshakeTimeout, "handshake-timeout", mcp.DefaultHandshakeTimeout, "MCP handshake timeout")
	flag.DurationVar(&callTimeout, "call-timeout", mcp.DefaultCallTimeout, "MCP tool call timeout")
	flag.Parse()

	logger := logging.NewLogger("console")
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("Failed to open log store: %v", err)
	}
	defer func() { _ = st.Close() }()

	gen := llm.NewGeminiClient(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// CSV ingestion in the background.
	watcher := ingest.NewWatcher(logging.NewLogger("ingest"), st, cfg.Ingestion.WatchDirectory, cfg.Ingestion.CSVSeparator)
	g.Go(func() error {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ingestion watcher: %w", err)
		}
		return nil
	})

	// Prometheus endpoint.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	// Both MCP servers start in parallel; a failed backend only costs its
	// assistant, the console stays usable.
	clients := startClients(ctx, logger, cfg, handshakeTimeout, callTimeout)
	defer func() {
		for _, c := range clients {
			if err := c.Close(); err != nil {
				logger.Warnf("Closing %s client: %v", c.Name(), err)
			}
		}
	}()

	assistants := map[string]*assistant.Assistant{
		"logs": assistant.NewLogs(gen, st),
	}
	for _, c := range clients {
		switch c.Name() {
		case "wazuh":
			assistants["wazuh"] = assistant.NewWazuh(gen, c, limit.New("wazuh", limit.DefaultConfig()))
		case "thehive":
			assistants["thehive"] = assistant.NewTheHive(gen, c, limit.New("thehive", limit.DefaultConfig()))
		}
	}

	g.Go(func() error {
		return runREPL(ctx, logger, assistants)
	})

	logger.Infof("Console ready (metrics on %s, assistants: %s)",
		cfg.MetricsAddr, strings.Join(assistantNames(assistants), ", "))

	err = g.Wait()
	stop()
	if err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		logger.Errorf("Shutdown error: %v", err)
	}
	logger.Info("Console stopped")
}

// startClients launches and initializes every configured MCP server
// concurrently. Backends that fail to come up are logged and skipped.
func startClients(ctx context.Context, logger *zap.SugaredLogger, cfg *config.Config, handshakeTimeout, callTimeout time.Duration) []*mcp.Client {
	backends := []struct {
		name string
		path string
	}{
		{name: "wazuh", path: cfg.MCP.WazuhServerPath},
		{name: "thehive", path: cfg.MCP.TheHiveServerPath},
	}

	var (
		mu      sync.Mutex
		clients []*mcp.Client
		wg      sync.WaitGroup
	)
	for _, backend := range backends {
		wg.Add(1)
		go func(name, path string) {
			defer wg.Done()

			client := mcp.NewClient(path, name, clientVersion,
				mcp.WithHandshakeTimeout(handshakeTimeout),
				mcp.WithCallTimeout(callTimeout))
			tools, err := client.Initialize(ctx)
			if err != nil {
				logger.Warnf("Failed to connect to %s MCP server: %v", name, err)
				_ = client.Close()
				return
			}
			logger.Infof("Connected to %s MCP server (%d tools available)", name, len(tools))

			mu.Lock()
			clients = append(clients, client)
			mu.Unlock()
		}(backend.name, backend.path)
	}
	wg.Wait()
	return clients
}

// runREPL reads user lines from stdin and routes them to the selected
// assistant until EOF, /quit, or context cancellation.
func runREPL(ctx context.Context, logger *zap.SugaredLogger, assistants map[string]*assistant.Assistant) error {
	names := assistantNames(assistants)
	current := names[0]
	if _, ok := assistants["logs"]; ok {
		current = "logs"
	}

	fmt.Printf("Unified security assistant console. Assistants: %s\n", strings.Join(names, ", "))
	fmt.Println("Commands: /assistant <name>, /tools, /history, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warnf("Reading stdin: %v", err)
		}
	}()

	for {
		fmt.Printf("[%s] > ", current)

		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin EOF ends the session.
				fmt.Println()
				return errQuit
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if strings.HasPrefix(line, "/") {
				quit, err := handleCommand(line, assistants, &current)
				if err != nil {
					fmt.Println(err)
					continue
				}
				if quit {
					return errQuit
				}
				continue
			}

			reply, err := assistants[current].Handle(ctx, line)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println(reply.Text)
		}
	}
}

// handleCommand processes a /-prefixed console command. It returns true
// when the user asked to quit.
func handleCommand(line string, assistants map[string]*assistant.Assistant, current *string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/assistant":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /assistant <%s>", strings.Join(assistantNames(assistants), "|"))
		}
		name := fields[1]
		if _, ok := assistants[name]; !ok {
			return false, fmt.Errorf("unknown assistant %q (have: %s)", name, strings.Join(assistantNames(assistants), ", "))
		}
		*current = name
		fmt.Printf("Switched to %s: %s\n", name, assistants[name].Description())
		return false, nil

	case "/tools":
		a := assistants[*current]
		fmt.Printf("Tools for %s:\n", a.Name())
		for _, tool := range a.ToolNames() {
			fmt.Printf("  %s\n", tool)
		}
		return false, nil

	case "/history":
		for _, msg := range assistants[*current].History() {
			fmt.Printf("[%s] %s: %s\n", msg.Time.Format("15:04:05"), msg.Role, msg.Content)
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func assistantNames(assistants map[string]*assistant.Assistant) []string {
	names := make([]string, 0, len(assistants))
	for name := range assistants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
