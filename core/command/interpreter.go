// Package command 借助本地 Ollama 模型把语音或文字转换为播放命令并应用到会话
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"MusicManager/core/apperr"
	"MusicManager/logger"
)

// Type 播放命令类型
type Type string

const (
	Search        Type = "search"
	Play          Type = "play"
	AddToQueueTop Type = "addToQueueTop"
	AddToQueueEnd Type = "addToQueueEnd"
	Pause         Type = "pause"
	Resume        Type = "resume"
	Skip          Type = "skip"
	VolumeUp      Type = "volumeUp"
	VolumeDown    Type = "volumeDown"
	VolumeMax     Type = "volumeMax"
	Mute          Type = "mute"
	ClearQueue    Type = "clearQueue"
	ShuffleQueue  Type = "shuffleQueue"
	Unknown       Type = "unknown"
)

// Command 解析后的命令，搜索类命令的 Payload 是歌曲查询
type Command struct {
	Type    Type   `json:"type"`
	Payload string `json:"payload,omitempty"`
}

// UnmarshalJSON 接受任意 JSON payload 并保留其文本形式，模型不一定返回字符串
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    Type `json:"type"`
		Payload any  `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Type = raw.Type
	switch p := raw.Payload.(type) {
	case nil:
		c.Payload = ""
	case string:
		c.Payload = p
	default:
		c.Payload = fmt.Sprint(p)
	}
	return nil
}

// Config 指令解析配置
type Config struct {
	BaseURL     string // 例如 http://localhost:11434
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Interpreter 调用兼容 Ollama 的 /api/generate 接口解析命令
type Interpreter struct {
	config     *Config
	httpClient *http.Client
}

// NewInterpreter 创建指令解析器
func NewInterpreter(config *Config) *Interpreter {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Interpreter{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Interpret 把文本发给模型并解析回答
//
// 传输和状态码失败包装 apperr.ErrUpstreamUnavailable，无法理解的回答返回 Unknown 命令而不是错误。
func (i *Interpreter) Interpret(ctx context.Context, text string) (Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}, fmt.Errorf("empty command: %w", apperr.ErrInvalidArgument)
	}

	body, err := json.Marshal(generateRequest{
		Model:   i.config.Model,
		Prompt:  BuildPrompt(text),
		Stream:  false,
		Options: generateOptions{Temperature: i.config.Temperature},
	})
	if err != nil {
		return Command{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(i.config.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Command{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return Command{}, fmt.Errorf("failed to reach command model: %w: %w", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Command{}, fmt.Errorf("command model returned status %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(msg)), apperr.ErrUpstreamUnavailable)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Command{}, fmt.Errorf("failed to decode response: %w: %w", apperr.ErrUpstreamUnavailable, err)
	}

	cmd := Parse(out.Response)
	logger.Info("[Command] 指令解析完成",
		logger.String("text", text),
		logger.String("type", string(cmd.Type)),
		logger.String("payload", cmd.Payload))
	return cmd, nil
}

// BuildPrompt 生成发给模型的提示词
func BuildPrompt(text string) string {
	return `You are a voice command interpreter for a music player. Parse the following command and output only a JSON object representing the command with no additional text.

Available commands:
- search: Search for a song and add it to the end of the queue
- play: Search for a song and play it immediately
- addToQueueTop: Search for a song and add it to the top of the queue
- addToQueueEnd: Search for a song and add it to the end of the queue
- pause: Pause the current playback
- resume: Resume playback
- skip: Skip to the next song
- volumeUp: Increase the volume
- volumeDown: Decrease the volume
- volumeMax: Set volume to maximum
- mute: Toggle mute
- clearQueue: Clear the queue
- shuffleQueue: Shuffle the queue

Command: "` + text + `"

Output JSON with "type" and optional "payload" fields. For example:
{"type":"play","payload":"bohemian rhapsody"}

JSON:`
}

// jsonObjectPattern 匹配回复中第一个 { 到最后一个 } 之间的内容
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

var (
	playWord   = regexp.MustCompile(`(?i)play`)
	searchWord = regexp.MustCompile(`(?i)search`)
)

// Parse 从模型回答中提取命令，优先取回答中的 JSON 对象，否则识别关键词
func Parse(response string) Command {
	if m := jsonObjectPattern.FindString(response); m != "" {
		var cmd Command
		if err := json.Unmarshal([]byte(m), &cmd); err != nil {
			logger.Debug("[Command] 模型输出不是合法 JSON",
				logger.String("response", response),
				logger.ErrorField(err))
			return Command{Type: Unknown}
		}
		if cmd.Type == "" {
			cmd.Type = Unknown
		}
		cmd.Payload = strings.TrimSpace(cmd.Payload)
		return cmd
	}

	switch {
	case strings.Contains(response, "play"):
		return Command{Type: Play, Payload: stripFirst(playWord, response)}
	case strings.Contains(response, "search"):
		return Command{Type: Search, Payload: stripFirst(searchWord, response)}
	case strings.Contains(response, "pause"):
		return Command{Type: Pause}
	}
	return Command{Type: Unknown}
}

func stripFirst(re *regexp.Regexp, s string) string {
	if loc := re.FindStringIndex(s); loc != nil {
		s = s[:loc[0]] + s[loc[1]:]
	}
	return strings.Join(strings.Fields(s), " ")
}
