// ABOUTME: CLI for the parley conversation sync engine.
// ABOUTME: chat/list/signed-url/register commands over the conversation service.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/2389/parley/internal/api"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/session"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/syncer"
	"github.com/2389/parley/internal/thread"
)

func main() {
	app := &cli.App{
		Name:  "parley",
		Usage: "talk to a conversation service from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file path"},
			&cli.StringFlag{Name: "server", Usage: "server base URL (overrides config)", EnvVars: []string{"PARLEY_SERVER"}},
		},
		Commands: []*cli.Command{
			chatCommand(),
			listCommand(),
			signedURLCommand(),
			registerCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration from --config and flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if server := c.String("server"); server != "" {
		cfg.Server.BaseURL = server
	}
	if cfg.Server.BaseURL == "" {
		return nil, fmt.Errorf("no server configured: pass --server or set server.base_url")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "open a conversation and chat interactively",
		ArgsUsage: "<conversation-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: parley chat <conversation-id>")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return runChat(cfg, c.Args().First())
		},
	}
}

func runChat(cfg *config.Config, conversationID string) error {
	logger := newLogger(cfg)
	client := api.New(cfg.Server.BaseURL, logger)

	cache, err := store.Open(cfg.Cache.Path, logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	// Every successful fetch refreshes the local cache before the snapshot
	// enters the merge path.
	fetch := func(ctx context.Context) (*thread.Conversation, error) {
		conv, err := client.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if err := cache.SaveConversation(ctx, conv); err != nil {
			logger.Debug("cache refresh failed", "error", err)
		}
		return conv, nil
	}

	ctrlCfg := syncer.Config{
		ConversationID:    conversationID,
		Fetch:             fetch,
		ReplyWaitInterval: cfg.Sync.ReplyWaitInterval,
		PassiveInterval:   cfg.Sync.PassiveRefreshInterval,
		Logger:            logger,
	}
	if cfg.Sync.PushEnabled {
		ctrlCfg.OpenPush = func(ctx context.Context, id string) (syncer.PushHandle, error) {
			return client.OpenPushChannel(ctx, api.PushPath(id))
		}
	}
	ctrl := syncer.NewController(ctrlCfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		_, msg := api.Classify(err)
		return errors.New(msg)
	}
	defer ctrl.Teardown()

	writer := thread.NewOptimisticWriter(ctrl.Store(), client, ctrl, dedupe.New(2*time.Second, 64), logger)

	var renderMu sync.Mutex
	printMessages(ctrl.Messages(), 0)
	printed := len(ctrl.Messages())

	// Render loop: print whatever the sync engine appended since last look.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ctrl.Updates():
				renderMu.Lock()
				msgs := ctrl.Messages()
				if len(msgs) > printed {
					printMessages(msgs, printed)
					printed = len(msgs)
				}
				renderMu.Unlock()
			}
		}
	}()

	fmt.Println("Connected. Type a message and press enter; ctrl-c to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		writer.SetDraft(line)
		if _, err := writer.Submit(ctx, thread.SourceText); err != nil {
			if errors.Is(err, thread.ErrDuplicateSubmit) {
				continue
			}
			_, msg := api.Classify(err)
			color.Red("✗ %s", msg)
			continue
		}
		// The typed line is already on screen; skip re-rendering it when the
		// server echoes it back.
		renderMu.Lock()
		printed = len(ctrl.Messages())
		renderMu.Unlock()
		ctrl.AwaitReply()
	}
	return scanner.Err()
}

func printMessages(msgs []thread.Message, from int) {
	for _, m := range msgs[from:] {
		switch m.Role {
		case thread.RoleUser:
			color.New(color.FgGreen, color.Bold).Printf("you> ")
			fmt.Println(m.Content)
		case thread.RoleAssistant:
			color.New(color.FgCyan).Printf("agent> ")
			fmt.Println(m.Content)
		case thread.RoleTool:
			color.New(color.FgYellow).Printf("tool:%s> ", m.ToolName)
			fmt.Println(m.Content)
		case thread.RoleSystem:
			color.New(color.Faint).Printf("system> %s\n", m.Content)
		}
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list conversations (falls back to the local cache offline)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.IntFlag{Name: "offset"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			client := api.New(cfg.Server.BaseURL, logger)

			ctx := c.Context
			page, err := client.ListConversations(ctx, api.ListParams{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err == nil {
				for _, conv := range page.Conversations {
					printConversationLine(&conv)
				}
				if page.Pagination.HasMore {
					color.New(color.Faint).Printf("... %d more\n", page.Pagination.Total-len(page.Conversations)-page.Pagination.Offset)
				}
				return nil
			}
			if !api.IsTransport(err) {
				_, msg := api.Classify(err)
				return errors.New(msg)
			}

			// Offline: serve the cached listing.
			cache, err := store.Open(cfg.Cache.Path, logger)
			if err != nil {
				return err
			}
			defer cache.Close()
			cached, err := cache.ListConversations(ctx, c.Int("limit"), c.Int("offset"))
			if err != nil {
				return err
			}
			color.New(color.Faint).Println("(offline, showing cached conversations)")
			for _, conv := range cached {
				printConversationLine(conv)
			}
			return nil
		},
	}
}

func printConversationLine(conv *thread.Conversation) {
	agent := conv.AgentID
	if agent == "" {
		agent = "-"
	}
	fmt.Printf("%s  agent=%s  last=%s\n",
		conv.ID, agent, conv.LastAccessedAt.Local().Format(time.RFC822))
}

func signedURLCommand() *cli.Command {
	return &cli.Command{
		Name:  "signed-url",
		Usage: "fetch a signed voice connection URL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "agent", Usage: "agent id to scope the URL to"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			client := api.New(cfg.Server.BaseURL, logger)

			lease, err := session.FetchLease(c.Context, client, c.String("agent"), logger)
			if err != nil {
				_, msg := api.Classify(err)
				return errors.New(msg)
			}
			fmt.Println(lease.SignedURL)
			color.New(color.Faint).Printf("expires %s\n", lease.ExpiresAt.Local().Format(time.RFC822))
			return nil
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "register a voice session for a conversation",
		ArgsUsage: "<conversation-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session-url", Required: true},
			&cli.StringFlag{Name: "session-id"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: parley register <conversation-id> --session-url <url>")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			client := api.New(cfg.Server.BaseURL, logger)

			mgr := session.NewManager(client, logger)
			record, err := mgr.Register(c.Context, c.Args().First(), c.String("session-url"), c.String("session-id"))
			if err != nil {
				var expired *session.ExpiredError
				if errors.As(err, &expired) {
					return errors.New(expired.Error())
				}
				_, msg := api.Classify(err)
				return errors.New(msg)
			}
			color.Green("✓ session registered (ttl %ds)", record.TTLSeconds)
			return nil
		},
	}
}
