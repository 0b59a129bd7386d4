package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/adamavenir/streamsync/internal/api"
	"github.com/adamavenir/streamsync/internal/conversation"
	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/logging"
	"github.com/adamavenir/streamsync/internal/metrics"
	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/adamavenir/streamsync/internal/socket"
	"github.com/spf13/cobra"
)

// CommandContext provides shared command resources.
type CommandContext struct {
	Config    core.Config
	JSONMode  bool
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	ReadState readstate.Store
	API       *api.Client

	closers []io.Closer
}

// loadConfig reads the config file and overlays persistent flags.
func loadConfig(cmd *cobra.Command) (core.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(path)
	if err != nil {
		return core.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.ServerURL = v
	}
	if v, _ := cmd.Flags().GetString("as"); v != "" {
		cfg.UserID = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg, nil
}

// GetContext resolves configuration, logging and read state for a command.
// withServer also validates the server settings and builds the API client.
func GetContext(cmd *cobra.Command, withServer bool) (*CommandContext, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newContext(cmd, cfg, withServer)
}

func newContext(cmd *cobra.Command, cfg core.Config, withServer bool) (*CommandContext, error) {
	jsonMode, _ := cmd.Flags().GetBool("json")
	if withServer {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, logCloser, err := logging.New(cfg.LogLevel, cfg.LogSink)
	if err != nil {
		return nil, err
	}
	ctx := &CommandContext{Config: cfg, JSONMode: jsonMode, Logger: logger}
	ctx.closers = append(ctx.closers, logCloser)

	st, err := readstate.Open(cfg.ReadState)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open read state: %w", err)
	}
	ctx.ReadState = st
	ctx.closers = append(ctx.closers, st)

	if withServer {
		client, err := api.NewClient(cfg.ServerURL, cfg.Token, logger)
		if err != nil {
			ctx.Close()
			return nil, err
		}
		ctx.API = client
	}
	if cfg.MetricsAddr != "" {
		ctx.Metrics = metrics.New()
	}
	return ctx, nil
}

// ServeMetrics exposes metrics until runCtx ends, when an address is configured.
func (c *CommandContext) ServeMetrics(runCtx context.Context) {
	if c.Metrics == nil {
		return
	}
	go func() {
		if err := c.Metrics.Serve(runCtx, c.Config.MetricsAddr); err != nil {
			c.Logger.Warn("metrics server stopped", "addr", c.Config.MetricsAddr, "err", err)
		}
	}()
}

// Connect starts a websocket client that reconnects until runCtx ends.
func (c *CommandContext) Connect(runCtx context.Context) (*socket.Client, error) {
	url, err := c.Config.ResolvedSocketURL()
	if err != nil {
		return nil, fmt.Errorf("socket url: %w", err)
	}
	client := socket.NewClient(url, socket.ClientOptions{Token: c.Config.Token, Logger: c.Logger})
	c.closers = append(c.closers, client)
	go func() {
		if err := client.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.Logger.Warn("socket stopped", "err", err)
		}
	}()
	return client, nil
}

// Options builds session options from the resolved config.
func (c *CommandContext) Options(transport socket.Transport) conversation.Options {
	opts := conversation.Options{
		SelfID:       c.Config.UserID,
		SelfName:     c.Config.UserName,
		PageSize:     c.Config.PageSize,
		JumpPageSize: c.Config.JumpPageSize,
		Transport:    transport,
		ReadState:    c.ReadState,
		Logger:       c.Logger,
		Metrics:      c.Metrics,
	}
	if c.API != nil {
		opts.Fetcher = c.API
		opts.ThreadFetcher = c.API.Threads()
	}
	return opts
}

// NewSession connects and builds a session that rejoins its conversation
// after every reconnect.
func (c *CommandContext) NewSession(runCtx context.Context) (*conversation.Session, error) {
	client, err := c.Connect(runCtx)
	if err != nil {
		return nil, err
	}
	sess, err := conversation.NewSession(c.Options(client))
	if err != nil {
		return nil, err
	}
	client.OnConnect(sess.Rejoin)
	return sess, nil
}

// Close releases everything in reverse order of acquisition.
func (c *CommandContext) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && c.Logger != nil {
			c.Logger.Debug("close", "err", err)
		}
	}
	c.closers = nil
}
