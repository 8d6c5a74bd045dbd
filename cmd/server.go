package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"MusicManager/cache"
	"MusicManager/core/command"
	"MusicManager/core/filter"
	"MusicManager/core/player"
	"MusicManager/logger"
	"MusicManager/model"
	"MusicManager/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 MusicManager 服务器",
	Long:  `启动 HTTP 服务器，提供搜索、流式滤镜、播放控制与 WebSocket 事件接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	defer logger.Sync()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	providers := newProviders(cfg)
	pipeline, _ := newPipeline(cfg, providers)

	tiered := cache.NewTieredFetcher(func(ctx context.Context, t model.Track) ([]byte, error) {
		return pipeline.Fetch(ctx, t, filter.Selection{})
	}, b.stores...)
	prefetch := cache.NewTrackCache(tiered.Fetch, cfg.PrefetchTimeout)
	defer prefetch.Close()

	session := player.NewSession(ctx, player.Options{
		Provider:          providers,
		Fetcher:           payloadFetcher{tiered: tiered, pipeline: pipeline},
		Cache:             prefetch,
		Persister:         b.persist,
		SettleDelay:       cfg.SettleDelay,
		NoticeDuration:    cfg.NoticeDuration,
		SearchLimit:       cfg.SearchLimit,
		AutocompleteLimit: cfg.AutocompleteLimit,
	})
	defer session.Close()

	var interpreter server.Interpreter
	if cfg.OllamaURL != "" {
		interpreter = command.NewInterpreter(&command.Config{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
		})
	}

	logger.Info("MusicManager 启动",
		logger.String("addr", cfg.ListenAddr),
		logger.Int("payloadStores", len(b.stores)),
		logger.Bool("fastPath", pipeline.FastPath()))

	return server.New(server.Options{
		Config:      cfg,
		Session:     session,
		Searcher:    providers,
		Streamer:    pipeline,
		Interpreter: interpreter,
	}).Run(ctx)
}
