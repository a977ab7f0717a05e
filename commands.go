package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fabfab/codemind/api"
	"github.com/fabfab/codemind/chat"
	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/events"
	"github.com/fabfab/codemind/store"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.HTTPAddr
			}
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	return cmd
}

func runServe(addr string) error {
	ctx, cancel := signalContext()
	defer cancel()

	b, err := connect(ctx, cfg, logger, connectOptions{redis: true, nats: true})
	if err != nil {
		return err
	}
	defer b.Close(context.Background())

	svc, fanOut, catalog, err := b.chatService(cfg, logger)
	if err != nil {
		return err
	}

	sessions := store.NewRepository(catalog)
	deps := api.Dependencies{
		Chat:                  svc,
		Sessions:              sessions,
		Files:                 fanOut,
		Catalog:               catalog,
		CodeGenerationDefault: cfg.Chat.CodeGenerationEnabled,
		DataDir:               cfg.DataDir,
		Logger:                logger,
	}
	if b.pool != nil {
		deps.Ingest = b.ingestion(cfg, logger)
	}
	if b.rdb != nil {
		snapshots := store.NewRedisSnapshots(b.rdb, "", catalog)
		snap, err := snapshots.Load(ctx)
		switch {
		case errors.Is(err, store.ErrNoSnapshot):
		case err != nil:
			logger.Warn("restore workspace failed", zap.Error(err))
		default:
			sessions.Restore(snap)
			logger.Info("workspace restored", zap.Int("sessions", len(snap.Sessions)))
		}
		deps.Snapshots = snapshots
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func newChatCmd() *cobra.Command {
	var (
		question  string
		grounding corpus.Grounding
		modelID   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask a single question from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(question) == "" {
				fmt.Print("Enter your question: ")
				scanner := bufio.NewScanner(os.Stdin)
				if scanner.Scan() {
					question = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read question: %w", err)
				}
			}
			return runChat(question, modelID, grounding)
		},
	}
	cmd.Flags().StringVar(&question, "question", "", "question to ask")
	cmd.Flags().StringVar(&modelID, "model", "", "model id from the catalog")
	cmd.Flags().BoolVar(&grounding.UseCorpus, "corpus", true, "search the document corpus")
	cmd.Flags().BoolVar(&grounding.UseGraph, "graph", false, "search the knowledge graph")
	cmd.Flags().BoolVar(&grounding.UseWebSearch, "web", false, "allow web search grounding")
	return cmd
}

func runChat(question, modelID string, grounding corpus.Grounding) error {
	ctx, cancel := signalContext()
	defer cancel()

	b, err := connect(ctx, cfg, logger, connectOptions{})
	if err != nil {
		return err
	}
	defer b.Close(context.Background())

	svc, _, _, err := b.chatService(cfg, logger)
	if err != nil {
		return err
	}

	sess := chat.NewSession(false)
	sess.SetGrounding(grounding)

	printed := map[int]string{}
	reply, err := svc.Submit(ctx, sess, chat.Request{Query: question, ModelID: modelID}, func(u chat.Update) {
		if u.Message.Role != chat.RoleModel {
			return
		}
		content, last := u.Message.Content, printed[u.Index]
		if strings.HasPrefix(content, last) {
			fmt.Print(content[len(last):])
		} else {
			fmt.Print("\n" + content)
		}
		printed[u.Index] = content
	})
	if err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}
	fmt.Println()

	for _, advisory := range reply.Advisories {
		fmt.Println(advisory.Message())
	}

	msgs := sess.Messages()
	for _, msg := range msgs {
		if len(msg.Sources) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			for idx, source := range msg.Sources {
				fmt.Printf("%d. %s (%s)\n", idx+1, source.Document.DisplayName, source.Document.FullPath())
			}
		}
		if len(msg.Citations) > 0 {
			fmt.Println()
			fmt.Println("Citations:")
			for idx, c := range msg.Citations {
				fmt.Printf("%d. %s <%s>\n", idx+1, c.Title, c.URI)
			}
		}
	}
	return nil
}

func newIngestCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a directory of documents into the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = cfg.DataDir
			}
			ctx, cancel := signalContext()
			defer cancel()

			b, err := connect(ctx, cfg, logger, connectOptions{requireCorpus: true})
			if err != nil {
				return err
			}
			defer b.Close(context.Background())

			logger.Info("ingesting documents",
				zap.String("dir", dir),
				zap.String("provider", cfg.Embeddings.Provider),
				zap.String("model", cfg.Embeddings.Model),
			)
			report, err := b.ingestion(cfg, logger).IngestDirectory(ctx, dir)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}
			fmt.Printf("%d files: %d ingested, %d unchanged, %d failed\n", report.Files, report.Ingested, report.Unchanged, report.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory containing documents (defaults to DATA_DIR)")
	return cmd
}

func newClearCmd() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all ingested data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				fmt.Print("This will permanently delete ingested RAG data from Postgres and Neo4j. Continue? [y/N]: ")
				scanner := bufio.NewScanner(os.Stdin)
				if !scanner.Scan() {
					if err := scanner.Err(); err != nil {
						return fmt.Errorf("read confirmation: %w", err)
					}
					logger.Info("clear aborted")
					return nil
				}
				answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
				if answer != "y" && answer != "yes" {
					logger.Info("clear aborted")
					return nil
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			b, err := connect(ctx, cfg, logger, connectOptions{requireCorpus: true})
			if err != nil {
				return err
			}
			defer b.Close(context.Background())

			if err := b.ingestion(cfg, logger).Clear(ctx); err != nil {
				return err
			}
			logger.Info("rag data removed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip confirmation prompt")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print accepted and rejected code suggestions as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.NatsURL == "" {
				return fmt.Errorf("NATS_URL is not set")
			}
			ctx, cancel := signalContext()
			defer cancel()

			publisher, err := events.NewNATSPublisher(cfg.NatsURL, cfg.NatsSubject, logger)
			if err != nil {
				return err
			}
			defer publisher.Close()

			logger.Info("watching edit events", zap.String("subject", cfg.NatsSubject))
			return publisher.Subscribe(ctx, func(event events.SuggestionResolved) {
				fmt.Printf("%s %s %s (session %s, applied=%t)\n",
					event.ResolvedAt.Format(time.RFC3339), event.Status, event.Path, event.SessionID, event.Applied)
			})
		},
	}
}
