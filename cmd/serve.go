package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studybot/internal/handler"
	"studybot/internal/rag"
	"studybot/internal/service"
	"studybot/internal/sessions"
	"studybot/internal/utils"
	"studybot/internal/watch"
	"studybot/pkg/telegram"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var webhook bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Inicia o bot (long polling ou webhook)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireToken(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, webhook)
		},
	}
	cmd.Flags().BoolVar(&webhook, "webhook", false, "recebe updates por webhook em vez de long polling")
	return cmd
}

func (a *app) serve(ctx context.Context, webhook bool) error {
	repo, knowledge, err := a.openKnowledge(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	client, err := telegram.New(a.cfg.Token, utils.MainMenu(), a.log, telegram.WithDebug(a.verbose))
	if err != nil {
		return err
	}
	if err := client.SetCommands(service.Commands); err != nil {
		a.log.Warn("não foi possível registrar os comandos", zap.Error(err))
	}

	messages := service.NewMessageService(knowledge, sessions.New(a.cfg.Sessions.TTL), client, utils.NewBuilder(true), a.log,
		service.WithBotUsername(client.Username()))

	if !webhook {
		if err := client.DeleteWebhook(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if store, ok := repo.(*rag.FileStore); ok && a.cfg.Cache.Enabled {
		w, err := watch.New(store.Dir(), a.log)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx, store.Invalidate) })
	}

	if webhook {
		a.startWebhook(gctx, g, client, messages)
	} else {
		g.Go(func() error { return client.Poll(gctx, messages.ProcessMessage) })
	}

	a.log.Info("bot iniciado", zap.String("bot", client.Username()), zap.Bool("webhook", webhook))
	err = g.Wait()
	a.log.Info("bot encerrado")
	return err
}

func (a *app) startWebhook(ctx context.Context, g *errgroup.Group, client *telegram.Client, messages *service.MessageService) {
	server := &http.Server{
		Addr:              a.cfg.Webhook.Listen,
		Handler:           handler.Routes(handler.NewWebhookHandler(messages, a.log)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.log.Info("servidor HTTP iniciado", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("erro ao iniciar o servidor: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		url, err := a.webhookURL(ctx)
		if err != nil {
			return err
		}
		return client.SetWebhook(url)
	})
}

// webhookURL devolve a URL configurada ou abre um túnel ngrok para a porta local.
func (a *app) webhookURL(ctx context.Context) (string, error) {
	base := a.cfg.Webhook.URL
	if a.cfg.Webhook.Ngrok {
		_, port, err := net.SplitHostPort(a.cfg.Webhook.Listen)
		if err != nil {
			return "", fmt.Errorf("endereço de escuta invalido %q: %w", a.cfg.Webhook.Listen, err)
		}
		base, err = telegram.StartNgrok(ctx, port)
		if err != nil {
			return "", err
		}
	}
	if base == "" {
		return "", errors.New("webhook.url nao configurada e webhook.ngrok desligado")
	}
	return webhookEndpoint(base), nil
}

func webhookEndpoint(base string) string {
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, "/webhook") {
		return base
	}
	return base + "/webhook"
}
