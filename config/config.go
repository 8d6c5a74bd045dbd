package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	ListenAddr string

	// 音频流水线
	FFmpegPath     string
	AudioBitrate   string // 例如 "320k"
	SampleRate     int
	FilterFastPath bool // 无滤镜时直接返回源字节

	// 媒体源
	SearchLimit       int
	AutocompleteLimit int
	YouTubeProxy      string

	// 播放器
	SettleDelay     time.Duration
	NoticeDuration  time.Duration
	PrefetchTimeout time.Duration

	// 本地持久化状态："file"、"redis" 或 "mysql"
	StateBackend string
	StateFile    string

	// Redis配置
	RedisEnabled    bool
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	PayloadCacheTTL time.Duration

	// MinIO配置
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	// MySQL，仅用于 mysql 状态后端
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// 命令解析
	OllamaURL   string
	OllamaModel string

	// 日志
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// getEnv 获取环境变量，不存在时返回默认值
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt 获取整数环境变量，不存在时返回默认值
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load 从环境变量（含 .env 文件）或默认值加载配置
func Load() *Config {
	// godotenv.Load() 不会覆盖已有的环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		AudioBitrate:   getEnv("AUDIO_BITRATE", "320k"),
		SampleRate:     getEnvInt("SAMPLE_RATE", 44100),
		FilterFastPath: getEnvBool("FILTER_FAST_PATH", false),

		SearchLimit:       getEnvInt("SEARCH_LIMIT", 25),
		AutocompleteLimit: getEnvInt("AUTOCOMPLETE_LIMIT", 15),
		YouTubeProxy:      os.Getenv("YOUTUBE_PROXY"),

		SettleDelay:     getEnvDuration("SETTLE_DELAY", 100*time.Millisecond),
		NoticeDuration:  getEnvDuration("NOTICE_DURATION", 2500*time.Millisecond),
		PrefetchTimeout: getEnvDuration("PREFETCH_TIMEOUT", 5*time.Minute),

		StateBackend: getEnv("STATE_BACKEND", "file"),
		StateFile:    getEnv("STATE_FILE", "data/state.json"),

		RedisEnabled:    getEnvBool("REDIS_ENABLED", false),
		RedisHost:       getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:         getEnvInt("REDIS_DB", 0),
		PayloadCacheTTL: getEnvDuration("PAYLOAD_CACHE_TTL", 30*time.Minute),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "musicmanager"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // 密码不设默认值
		DBName:     getEnv("DB_NAME", "musicmanager"),

		OllamaURL:   getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel: getEnv("OLLAMA_MODEL", "llama3"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}
