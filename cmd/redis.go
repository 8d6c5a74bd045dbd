package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"MusicManager/cache"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并用一个音频大小的值进行读写测试。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("开始测试Redis连接...")

		// 加载配置
		cfg := loadConfig()
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		// 连接Redis
		if err := cache.ConnectRedis(cfg); err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer cache.CloseRedis()
		fmt.Println("Redis连接成功！")

		fmt.Println("开始测试Redis基本操作...")
		if err := cache.TestRedis(cmd.Context()); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		info, err := cache.NewRedisPayloadStore(cache.RedisClient, cfg.PayloadCacheTTL).Info(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("已缓存音频: %d 条\n", len(info))
		if len(info) == 0 {
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Track", "TTL"})
		ids := lo.Keys(info)
		sort.Strings(ids)
		for _, id := range ids {
			t.AppendRow(table.Row{id, (time.Duration(info[id]) * time.Second).String()})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
