package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tanmaypaliwal576/OpsMind/api"
	"github.com/tanmaypaliwal576/OpsMind/chat"
	"github.com/tanmaypaliwal576/OpsMind/config"
	"github.com/tanmaypaliwal576/OpsMind/database"
	"github.com/tanmaypaliwal576/OpsMind/embeddings"
	"github.com/tanmaypaliwal576/OpsMind/ingestion"
	"github.com/tanmaypaliwal576/OpsMind/knowledge"
	"github.com/tanmaypaliwal576/OpsMind/llm"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("load .env: %v", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "listen address for the HTTP API")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer cleanup(ctx)

	server := api.New(deps.chatSvc, deps.ingestSvc, deps.documents, deps.conversations, deps.graph, logger)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s (embeddings %s/%s, llm %s/%s)",
		*addr,
		strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model,
		strings.ToUpper(cfg.LLM.Provider), cfg.LLM.Model)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := flags.String("file", "", "path to a single PDF to ingest")
	dir := flags.String("dir", cfg.DataDir, "directory of PDFs to ingest when --file is not set")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer cleanup(ctx)

	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			logger.Fatalf("read %s: %v", *file, err)
		}
		if err := deps.ingestSvc.IngestFile(ctx, filepath.Base(*file), data); err != nil {
			logger.Fatalf("ingest %s: %v", *file, err)
		}
		return
	}

	if err := deps.ingestSvc.IngestDirectory(ctx, *dir); err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func chatCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	question := flags.String("question", "", "question to ask against the indexed documents")
	stream := flags.Bool("stream", false, "print the answer incrementally")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read question: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer cleanup(ctx)

	var resp chat.Response
	if *stream {
		resp, err = deps.chatSvc.AskStream(ctx, *question, "", func(fragment string) error {
			fmt.Print(fragment)
			return nil
		})
		fmt.Println()
	} else {
		resp, err = deps.chatSvc.Ask(ctx, *question, "")
		if err == nil {
			fmt.Println(resp.Answer)
		}
	}
	if err != nil {
		logger.Fatalf("chat failed: %v", err)
	}

	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range resp.Sources {
			fmt.Printf("%d. %s, page %d (score %.2f)\n", idx+1, source.Filename, source.Page, source.SimilarityScore)
		}
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete all indexed documents and chunks. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "TRUNCATE chunks, documents"); err != nil {
		logger.Fatalf("truncate index tables: %v", err)
	}
	logger.Println("cleared chunks and documents")

	if cfg.GraphEnabled() {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Fatalf("neo4j connection: %v", err)
		}
		defer driver.Close(ctx)

		if err := knowledge.Purge(ctx, driver); err != nil {
			logger.Fatalf("clear graph: %v", err)
		}
		logger.Println("graph mirror cleared")
	}
}

type dependencies struct {
	chatSvc       *chat.Service
	ingestSvc     *ingestion.Service
	documents     chat.DocumentLister
	conversations chat.ConversationStore
	graph         chat.GraphStore
}

// buildDependencies wires the external-service clients once and injects
// them everywhere, instead of reconnecting per request.
func buildDependencies(ctx context.Context, cfg config.Config, logger *log.Logger) (*dependencies, func(context.Context), error) {
	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection: %w", err)
	}

	if err := database.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	var driver neo4j.DriverWithContext
	if cfg.GraphEnabled() {
		driver, err = database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("neo4j connection: %w", err)
		}
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("llm setup: %w", err)
	}

	conversations := chat.NewPostgresConversationStore(pool)
	chatSvc := chat.NewService(
		chat.NewPostgresVectorStore(pool),
		conversations,
		embedder,
		llmClient,
		logger,
		chat.Options{
			MinConfidence: cfg.Chat.MinConfidence,
			NumCandidates: cfg.Chat.NumCandidates,
			Limit:         cfg.Chat.Limit,
			LogRefusals:   cfg.Chat.LogRefusals,
		},
	)

	ingestSvc := ingestion.NewService(pool, driver, embedder, logger, cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)

	var graph chat.GraphStore
	if driver != nil {
		graph = chat.NewNeo4jGraphStore(driver)
	}

	deps := &dependencies{
		chatSvc:       chatSvc,
		ingestSvc:     ingestSvc,
		documents:     chat.NewPostgresDocumentLister(pool),
		conversations: conversations,
		graph:         graph,
	}

	cleanup := func(ctx context.Context) {
		if driver != nil {
			if err := driver.Close(ctx); err != nil {
				logger.Printf("close neo4j driver: %v", err)
			}
		}
		pool.Close()
	}

	return deps, cleanup, nil
}

func printUsage() {
	fmt.Println("Usage: opsmind <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API (chat, streaming chat, uploads, analytics)")
	fmt.Println("  ingest   Index local PDFs (use --file for one document, --dir for a directory)")
	fmt.Println("  chat     Ask a one-shot question against the indexed documents")
	fmt.Println("  clear    Remove all indexed chunks and documents")
}
