package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "musicmanager",
	Short: "MusicManager streams YouTube audio through live ffmpeg filters.",
	Long: `MusicManager 音乐播放服务: 搜索、队列、实时音效滤镜、自动播放与语音指令。
Without a subcommand it starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
