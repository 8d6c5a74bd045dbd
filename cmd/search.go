package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"MusicManager/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	searchLimit   int
	searchSuggest bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "搜索曲目",
	Long:  `通过 yt-dlp 搜索 YouTube 并以表格输出结果。使用 --suggest 时参数为视频 ID，输出其自动播放推荐。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		providers := newProviders(cfg)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		query := strings.Join(args, " ")
		var tracks []model.Track
		var err error
		if searchSuggest {
			tracks, err = providers.Autocomplete(ctx, query, searchLimit)
		} else {
			tracks, err = providers.Search(ctx, query, searchLimit)
		}
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			fmt.Println("No results found")
			return nil
		}

		renderTracks(tracks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "最多返回的结果数")
	searchCmd.Flags().BoolVarP(&searchSuggest, "suggest", "s", false, "列出该视频 ID 之后的推荐")
}

func renderTracks(tracks []model.Track) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "ID", "Title", "Channel", "Duration"})
	for i, tr := range tracks {
		d := tr.DurationFormatted
		if d == "" {
			d = model.FormatDuration(tr.Duration)
		}
		t.AppendRow(table.Row{i + 1, tr.ID, truncate(tr.Title, 60), truncate(tr.Channel.Name, 30), d})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
