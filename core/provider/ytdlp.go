package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/samber/lo"

	"MusicManager/core/apperr"
	"MusicManager/core/utils"
	"MusicManager/logger"
	"MusicManager/model"
)

const (
	// SourceYouTube yt-dlp 提供者的来源标识
	SourceYouTube = "youtube"

	watchURL = "https://www.youtube.com/watch?v="

	// id、url、标题、频道、频道 id、时长、缩略图
	printTemplate = "%(id)s\t%(url)s\t%(title)s\t%(channel)s\t%(channel_id)s\t%(duration)s\t%(thumbnails.-1.url)s"
	printFields   = 7

	// yt-dlp 对缺失字段输出 NA
	notAvailable = "NA"
)

// YTDLP 通过 yt-dlp 搜索和解析 YouTube 媒体
type YTDLP struct {
	proxy string

	// list 执行扁平播放列表提取，返回输出的行
	list func(ctx context.Context, target string, limit int) (string, error)
}

// NewYTDLP 创建 yt-dlp 提供者，proxy 可为空
func NewYTDLP(proxy string) *YTDLP {
	p := &YTDLP{proxy: proxy}
	p.list = p.flatPlaylist
	return p
}

// Source 实现 Provider
func (p *YTDLP) Source() string {
	return SourceYouTube
}

func (p *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if p.proxy != "" {
		cmd.Proxy(p.proxy)
	}
	return cmd
}

func (p *YTDLP) flatPlaylist(ctx context.Context, target string, limit int) (string, error) {
	res, err := p.command().
		FlatPlaylist().
		Print(printTemplate).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		Run(ctx, target)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return "", fmt.Errorf("yt-dlp: %v: %s", err, strings.TrimSpace(res.Stderr))
		}
		return "", err
	}
	return res.Stdout, nil
}

// Search 实现 Provider
func (p *YTDLP) Search(ctx context.Context, query string, limit int) ([]model.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query: %w", apperr.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 25
	}

	out, err := p.list(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query), limit)
	if err != nil {
		logger.Warn("搜索失败", logger.String("query", query), logger.ErrorField(err))
		return nil, fmt.Errorf("search %q: %v: %w", query, err, apperr.ErrUpstreamUnavailable)
	}

	tracks := ParseTracks(out)
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

// Autocomplete 实现 Provider，推荐来自曲目的 mix 播放列表，列表以曲目本身开头
func (p *YTDLP) Autocomplete(ctx context.Context, trackID string, limit int) ([]model.Track, error) {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return nil, fmt.Errorf("empty track id: %w", apperr.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 15
	}

	mix := watchURL + url.QueryEscape(trackID) + "&list=RD" + url.QueryEscape(trackID)
	// 多取一条给种子曲目
	out, err := p.list(ctx, mix, limit+1)
	if err != nil {
		logger.Warn("获取推荐失败", logger.String("trackId", trackID), logger.ErrorField(err))
		return nil, fmt.Errorf("autocomplete %s: %v: %w", trackID, err, apperr.ErrUpstreamUnavailable)
	}

	tracks := lo.Filter(ParseTracks(out), func(t model.Track, _ int) bool { return t.ID != trackID })
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

// Resolve 实现 Provider
//
// 最佳纯音频格式从 yt-dlp 的 stdout 流式读取。先等待第一个字节，
// 无法解析的链接在这里失败而不是在流中途失败。
func (p *YTDLP) Resolve(ctx context.Context, trackURL string) (io.ReadCloser, error) {
	trackURL = strings.TrimSpace(trackURL)
	if trackURL == "" {
		return nil, fmt.Errorf("empty track url: %w", apperr.ErrInvalidArgument)
	}

	cmd := p.command().
		Format("bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckCertificates().
		BuildCommand(ctx, trackURL)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")

	proc, err := utils.StartProcess("yt-dlp", cmd, apperr.ErrUpstreamUnavailable)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(proc, 64<<10)
	if _, err := br.Peek(1); err != nil {
		proc.Close()
		logger.Warn("解析音源失败", logger.String("url", trackURL), logger.ErrorField(err))
		return nil, fmt.Errorf("resolve %s: %w", trackURL, err)
	}

	return struct {
		io.Reader
		io.Closer
	}{br, proc}, nil
}

// ParseTracks 解析按模板输出的行，跳过没有 id 的行，NA 字段视为空
func ParseTracks(out string) []model.Track {
	var tracks []model.Track
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < printFields {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
			if fields[i] == notAvailable {
				fields[i] = ""
			}
		}

		id := fields[0]
		if id == "" {
			continue
		}

		seconds := 0
		if d, err := strconv.ParseFloat(fields[5], 64); err == nil && d > 0 {
			seconds = int(d)
		}

		tracks = append(tracks, model.Track{
			ID:                id,
			URL:               canonicalURL(id, fields[1]),
			Title:             fields[2],
			Duration:          seconds,
			DurationFormatted: model.FormatDuration(seconds),
			Channel:           model.Channel{Name: fields[3], ID: fields[4]},
			Thumbnail:         model.Thumbnail{URL: fields[6]},
		})
	}
	return tracks
}

// canonicalURL 优先用 id 构造 watch 链接，扁平提取有时在 url 字段输出裸 id 或 shorts 链接
func canonicalURL(id, printed string) string {
	if strings.HasPrefix(printed, watchURL) {
		return printed
	}
	return watchURL + id
}
