// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/poiesic/kbassist"
	"github.com/poiesic/kbassist/config"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/knowledge"
	"github.com/poiesic/kbassist/logging"
	"github.com/poiesic/kbassist/reembed"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// runner carries what every command needs to build an engine.
type runner struct {
	out     io.Writer
	errOut  io.Writer
	cfg     *config.Config
	options []kbassist.Option
}

func newApp(out, errOut io.Writer, opts ...kbassist.Option) *cli.App {
	r := &runner{out: out, errOut: errOut, options: opts}
	userFlag := &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "User the conversations belong to",
		Required: true,
	}

	return &cli.App{
		Name:      "kbassist",
		Usage:     "Answer questions from the company knowledge base",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides the config file",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"KBASSIST_CONFIG"},
			},
		},
		Before: r.setup,
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "Ask a question",
				ArgsUsage: "<question...>",
				Action:    r.ask,
				Flags: []cli.Flag{
					userFlag,
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "Continue an existing conversation",
					},
				},
			},
			{
				Name:  "conversations",
				Usage: "Browse and manage conversations",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List conversations, most recent first",
						Action: r.listConversations,
						Flags: []cli.Flag{
							userFlag,
							&cli.IntFlag{Name: "limit", Usage: "Page size", Value: 20},
							&cli.IntFlag{Name: "offset", Usage: "Number of conversations to skip"},
						},
					},
					{
						Name:   "recent",
						Usage:  "Show the most recently active conversations",
						Action: r.recentConversations,
						Flags: []cli.Flag{
							userFlag,
							&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "Number of conversations", Value: 5},
						},
					},
					{
						Name:      "search",
						Usage:     "Find conversations whose title or turns contain a phrase",
						ArgsUsage: "<query...>",
						Action:    r.searchConversations,
						Flags: []cli.Flag{
							userFlag,
							&cli.IntFlag{Name: "limit", Usage: "Maximum results", Value: 20},
						},
					},
					{
						Name:   "stats",
						Usage:  "Summarize conversation activity",
						Action: r.conversationStats,
						Flags:  []cli.Flag{userFlag},
					},
					{
						Name:      "show",
						Usage:     "Print a conversation transcript",
						ArgsUsage: "<id>",
						Action:    r.showConversation,
						Flags:     []cli.Flag{userFlag},
					},
					{
						Name:      "rename",
						Usage:     "Rename a conversation",
						ArgsUsage: "<id> <title...>",
						Action:    r.renameConversation,
						Flags:     []cli.Flag{userFlag},
					},
					{
						Name:      "delete",
						Usage:     "Delete a conversation and all of its turns",
						ArgsUsage: "<id>",
						Action:    r.deleteConversation,
						Flags:     []cli.Flag{userFlag},
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Load knowledge entries from a YAML file",
				Action: r.seed,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the knowledge seed file",
						Required: true,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all knowledge entries with the configured embedding model",
				Action: r.reembed,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of entries to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N entries",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Embedding requests in flight at once",
						Value: 4,
					},
				},
			},
		},
	}
}

// setup loads the configuration and installs the logger.
func (r *runner) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	r.cfg = cfg

	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	slog.SetDefault(logging.New(level, r.errOut))
	return nil
}

func (r *runner) engine(c *cli.Context) (*kbassist.Engine, error) {
	e, err := kbassist.New(c.Context, r.cfg, r.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return e, nil
}

func (r *runner) ask(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("a question is required")
	}

	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.Answer(c.Context, c.String("user"), question, c.String("conversation"))
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, result.Response)
	if len(result.Sources) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, "Sources:")
		for _, s := range result.Sources {
			fmt.Fprintf(r.out, "  - %s (%s, %.3f)\n", s.Title, s.Kind, s.Score)
		}
	}
	fmt.Fprintf(r.out, "\nConversation: %s\n", result.ConversationID)
	return nil
}

func (r *runner) listConversations(c *cli.Context) error {
	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	sessions, err := e.Conversations().ListConversations(c.Context, c.String("user"), c.Int("limit"), c.Int("offset"))
	if err != nil {
		return err
	}
	r.printSessions(sessions)
	return nil
}

func (r *runner) recentConversations(c *cli.Context) error {
	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	sessions, err := e.Conversations().RecentConversations(c.Context, c.String("user"), c.Int("count"))
	if err != nil {
		return err
	}
	r.printSessions(sessions)
	return nil
}

func (r *runner) searchConversations(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a search query is required")
	}

	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	sessions, err := e.Conversations().SearchConversations(c.Context, c.String("user"), query, c.Int("limit"))
	if err != nil {
		return err
	}
	r.printSessions(sessions)
	return nil
}

func (r *runner) conversationStats(c *cli.Context) error {
	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	stats, err := e.Conversations().Analytics(c.Context, c.String("user"))
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Conversations:       %d\n", stats.TotalConversations)
	fmt.Fprintf(r.out, "Messages:            %d\n", stats.TotalMessages)
	fmt.Fprintf(r.out, "Avg messages/conv:   %.2f\n", stats.AverageMessages())
	fmt.Fprintf(r.out, "Empty conversations: %d\n", stats.EmptyConversations)
	fmt.Fprintf(r.out, "Engagement rate:     %.2f%%\n", stats.EngagementRate())
	fmt.Fprintf(r.out, "This week:           %d conversations, %d messages\n",
		stats.ConversationsThisWeek, stats.MessagesThisWeek)
	for _, d := range stats.DailyUsage {
		fmt.Fprintf(r.out, "  %s  %d\n", d.Date.Format(time.DateOnly), d.Conversations)
	}
	return nil
}

func (r *runner) showConversation(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("a conversation id is required")
	}

	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	turns, err := e.Conversations().Transcript(c.Context, c.String("user"), id)
	if err != nil {
		return err
	}
	for _, turn := range turns {
		fmt.Fprintf(r.out, "[%s]\nYou: %s\nAssistant: %s\n\n",
			turn.CreatedAt.Local().Format(time.DateTime), turn.Message, turn.Response)
	}
	return nil
}

func (r *runner) renameConversation(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return errors.New("a conversation id and a title are required")
	}
	id := c.Args().First()
	title := strings.Join(c.Args().Tail(), " ")

	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	session, err := e.Conversations().RenameConversation(c.Context, c.String("user"), id, title)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Renamed %s to %q\n", session.ID, session.Title)
	return nil
}

func (r *runner) deleteConversation(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("a conversation id is required")
	}

	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	session, err := e.Sessions().GetSession(c.Context, id)
	if err != nil || session.UserID != c.String("user") {
		return core.ErrConversationNotFound
	}
	if err := e.Sessions().DeleteSession(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Deleted %s\n", id)
	return nil
}

func (r *runner) seed(c *cli.Context) error {
	entries, err := knowledge.LoadFile(c.String("file"))
	if err != nil {
		return err
	}

	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	importer, err := e.NewImporter()
	if err != nil {
		return err
	}
	defer importer.Release()

	stored, err := importer.Import(c.Context, entries...)
	if err != nil && len(stored) == 0 {
		return fmt.Errorf("seeding failed: %w", err)
	}
	fmt.Fprintf(r.out, "Imported %d entries from %s\n", len(stored), c.String("file"))
	return err
}

func (r *runner) reembed(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ChunkSize:      reembed.DefaultChunkSize,
		Workers:        c.Int("workers"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}
	if reembedConfig.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}

	e, err := r.engine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	reembedder, err := e.NewReembedder(reembedConfig, r.errOut)
	if err != nil {
		return err
	}
	defer reembedder.Release()

	fmt.Fprintf(r.errOut, "Knowledge store: %s\n", r.cfg.Storage.Path)
	fmt.Fprintf(r.errOut, "Embedding host: %s\n", r.cfg.AI.EmbeddingHost)
	fmt.Fprintf(r.errOut, "Embedding model: %s\n", r.cfg.AI.EmbeddingModel)
	fmt.Fprintln(r.errOut)

	if err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func (r *runner) printSessions(sessions []*core.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(r.out, "No conversations found")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(r.out, "%s  %s  %s\n", s.ID, s.UpdatedAt.Local().Format(time.DateTime), s.Title)
	}
}
