package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"MusicManager/core/filter"
	"MusicManager/logger"

	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"
)

var (
	transcodeOutput  string
	transcodeFilters string
	transcodeBass    string
)

var transcodeCmd = &cobra.Command{
	Use:   "transcode <videoUrl>",
	Short: "下载并应用滤镜，输出 MP3 文件",
	Long:  `与 /api/stream 相同的流水线: 解析音源，经 ffmpeg 滤镜链转码为 MP3 并写入文件。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer logger.Sync()

		pipeline, transcoder := newPipeline(cfg, newProviders(cfg))
		ops := pipeline.Compile(filter.ParseQuery(transcodeFilters, transcodeBass))

		out, err := os.Create(transcodeOutput)
		if err != nil {
			return err
		}
		defer out.Close()

		var written int64
		run := func(ctx context.Context) error {
			stream, err := pipeline.Open(ctx, args[0], ops)
			if err != nil {
				return err
			}
			defer stream.Close()
			written, err = io.Copy(out, stream)
			return err
		}

		title := fmt.Sprintf("Transcoding [%s]...", filter.Graph(ops))
		if err := spinner.New().Title(title).Context(cmd.Context()).ActionWithErr(run).Run(); err != nil {
			os.Remove(transcodeOutput)
			return err
		}

		duration, err := transcoder.GetAudioDuration(cmd.Context(), transcodeOutput)
		if err != nil {
			logger.Warn("ffprobe 执行失败", logger.ErrorField(err))
			fmt.Printf("写入 %s (%d 字节)\n", transcodeOutput, written)
			return nil
		}
		fmt.Printf("写入 %s (%d 字节, %.1f 秒)\n", transcodeOutput, written, duration)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transcodeCmd)
	transcodeCmd.Flags().StringVarP(&transcodeOutput, "output", "o", "out.mp3", "输出文件")
	transcodeCmd.Flags().StringVarP(&transcodeFilters, "filters", "f", "", "逗号分隔的滤镜 ID, 例如 bass,echo")
	transcodeCmd.Flags().StringVar(&transcodeBass, "bass", "", "bass 滤镜增益 (dB)")
}
