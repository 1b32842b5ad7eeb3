package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ai-video-cutter/internal/appdirs"
	"ai-video-cutter/log"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	WorkerModeLocal = "local"
	WorkerModeAsynq = "asynq"

	ProviderOpenai = "openai"
	ProviderGemini = "gemini"
)

type App struct {
	Proxy string `toml:"proxy"`
	// WorkerMode selects the dispatcher: "local" (in-process pool) or "asynq".
	WorkerMode       string `toml:"worker_mode"`
	Concurrency      int    `toml:"concurrency"`
	QueueSize        int    `toml:"queue_size"`
	HistoryTurns     int    `toml:"history_turns"`
	MaxUploadMB      int64  `toml:"max_upload_mb"`
	PersistTasks     bool   `toml:"persist_tasks"`
	UploadDir        string `toml:"upload_dir"`
	ProcessedDir     string `toml:"processed_dir"`
	AllowedVideoExts string `toml:"allowed_video_exts"`
}

type Server struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type Llm struct {
	Provider     string `toml:"provider"`
	BaseUrl      string `toml:"base_url"`
	ApiKey       string `toml:"api_key"`
	Model        string `toml:"model"`
	JsonMode     bool   `toml:"json_mode"`
	MaxTokens    int    `toml:"max_tokens"`
	SystemPrompt string `toml:"system_prompt"`

	// AttachVideo sends the source video with each chat turn when the
	// provider supports it (gemini).
	AttachVideo bool    `toml:"attach_video"`
	VideoFps    float64 `toml:"video_fps"`
}

type Media struct {
	FfmpegPath  string `toml:"ffmpeg_path"`
	FfprobePath string `toml:"ffprobe_path"`
}

// Timeouts are in seconds.
type Timeouts struct {
	Analyze  int `toml:"analyze"`
	Chat     int `toml:"chat"`
	Finalize int `toml:"finalize"`
}

type Redis struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// HistoryTTLHours expires chat history keys; 0 keeps them forever.
	HistoryTTLHours int `toml:"history_ttl_hours"`
}

type Config struct {
	App      App      `toml:"app"`
	Server   Server   `toml:"server"`
	Llm      Llm      `toml:"llm"`
	Media    Media    `toml:"media"`
	Timeouts Timeouts `toml:"timeouts"`
	Redis    Redis    `toml:"redis"`
}

var Conf = defaultConfig()

var (
	resolveConfigPath = ResolveConfigPath
	appDirsResolver   = appdirs.Resolve
)

func defaultConfig() Config {
	return Config{
		App: App{
			WorkerMode:       WorkerModeLocal,
			Concurrency:      2,
			QueueSize:        64,
			HistoryTurns:     20,
			MaxUploadMB:      2048,
			PersistTasks:     true,
			AllowedVideoExts: ".mp4,.mov,.mkv,.webm,.avi,.m4v",
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8888,
		},
		Llm: Llm{
			Provider:    ProviderOpenai,
			JsonMode:    true,
			AttachVideo: true,
			VideoFps:    15,
		},
		Media: Media{
			FfmpegPath:  "ffmpeg",
			FfprobePath: "ffprobe",
		},
		Timeouts: Timeouts{
			Analyze:  60,
			Chat:     120,
			Finalize: 1800,
		},
		Redis: Redis{
			Addr:            "127.0.0.1:6379",
			HistoryTTLHours: 72,
		},
	}
}

func ResolveConfigPath() (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dirs.ConfigFile) == "" {
		return filepath.Join("config", "config.toml"), nil
	}
	return dirs.ConfigFile, nil
}

// LoadOrCreateConfig loads the toml config into Conf, writing the defaults
// first when the file does not exist. Environment overrides are applied
// afterwards and never written back.
func LoadOrCreateConfig() (created bool, err error) {
	path, err := resolveConfigPath()
	if err != nil {
		return false, fmt.Errorf("resolve config path: %w", err)
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		Conf = defaultConfig()
		if err = SaveConfig(); err != nil {
			return false, err
		}
		log.GetLogger().Info("[Config] default config written", zap.String("path", path))
		created = true
	} else if statErr != nil {
		return false, fmt.Errorf("stat config: %w", statErr)
	} else {
		loaded := defaultConfig()
		if _, err = toml.DecodeFile(path, &loaded); err != nil {
			return false, fmt.Errorf("decode config %s: %w", path, err)
		}
		Conf = loaded
		log.GetLogger().Info("[Config] config loaded", zap.String("path", path))
	}

	loadDotEnv()
	applyEnv(&Conf, os.LookupEnv)
	return created, nil
}

// SaveConfig writes Conf to the config path, creating parent directories.
func SaveConfig() error {
	path, err := resolveConfigPath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer file.Close()

	if err = toml.NewEncoder(file).Encode(Conf); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// CheckConfig validates Conf and fills zero values that would make the
// service unusable.
func CheckConfig() error {
	switch Conf.App.WorkerMode {
	case "":
		Conf.App.WorkerMode = WorkerModeLocal
	case WorkerModeLocal:
	case WorkerModeAsynq:
		if strings.TrimSpace(Conf.Redis.Addr) == "" {
			return errors.New("worker_mode asynq requires redis.addr")
		}
	default:
		return fmt.Errorf("unsupported app.worker_mode %q", Conf.App.WorkerMode)
	}

	switch Conf.Llm.Provider {
	case "":
		Conf.Llm.Provider = ProviderOpenai
	case ProviderOpenai, ProviderGemini:
	default:
		return fmt.Errorf("unsupported llm.provider %q", Conf.Llm.Provider)
	}
	if strings.TrimSpace(Conf.Llm.ApiKey) == "" {
		log.GetLogger().Warn("[Config] llm.api_key is empty; chat turns will fail until it is set")
	}

	if Conf.Server.Port <= 0 || Conf.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", Conf.Server.Port)
	}
	if Conf.App.Concurrency <= 0 {
		Conf.App.Concurrency = 1
	}
	if Conf.App.QueueSize <= 0 {
		Conf.App.QueueSize = 64
	}
	if Conf.Media.FfmpegPath == "" {
		Conf.Media.FfmpegPath = "ffmpeg"
	}
	if Conf.Media.FfprobePath == "" {
		Conf.Media.FfprobePath = "ffprobe"
	}

	def := defaultConfig().Timeouts
	if Conf.Timeouts.Analyze <= 0 {
		Conf.Timeouts.Analyze = def.Analyze
	}
	if Conf.Timeouts.Chat <= 0 {
		Conf.Timeouts.Chat = def.Chat
	}
	if Conf.Timeouts.Finalize <= 0 {
		Conf.Timeouts.Finalize = def.Finalize
	}
	return nil
}

// Timeout returns the per-kind execution limit.
func (t Timeouts) Timeout(kind string) time.Duration {
	switch kind {
	case "analyze":
		return time.Duration(t.Analyze) * time.Second
	case "chat":
		return time.Duration(t.Chat) * time.Second
	case "finalize":
		return time.Duration(t.Finalize) * time.Second
	}
	return 0
}

func (r Redis) HistoryTTL() time.Duration {
	return time.Duration(r.HistoryTTLHours) * time.Hour
}

func (a App) MaxUploadBytes() int64 {
	return a.MaxUploadMB << 20
}

func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func loadDotEnv() {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.GetLogger().Warn("[Config] load .env failed", zap.Error(err))
	}
}

// applyEnv overrides secrets and deployment knobs from the environment.
func applyEnv(c *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	str("VIDEOCUTTER_LLM_PROVIDER", &c.Llm.Provider)
	str("VIDEOCUTTER_LLM_BASE_URL", &c.Llm.BaseUrl)
	str("VIDEOCUTTER_LLM_API_KEY", &c.Llm.ApiKey)
	str("VIDEOCUTTER_LLM_MODEL", &c.Llm.Model)
	str("VIDEOCUTTER_PROXY", &c.App.Proxy)
	str("VIDEOCUTTER_WORKER_MODE", &c.App.WorkerMode)
	str("VIDEOCUTTER_HOST", &c.Server.Host)
	num("VIDEOCUTTER_PORT", &c.Server.Port)
	str("VIDEOCUTTER_FFMPEG", &c.Media.FfmpegPath)
	str("VIDEOCUTTER_FFPROBE", &c.Media.FfprobePath)
	str("VIDEOCUTTER_REDIS_ADDR", &c.Redis.Addr)
	str("VIDEOCUTTER_REDIS_PASSWORD", &c.Redis.Password)
	num("VIDEOCUTTER_REDIS_DB", &c.Redis.DB)
	flag("VIDEOCUTTER_REDIS_ENABLED", &c.Redis.Enabled)

	// Conventional provider keys, used when nothing more specific is set.
	if c.Llm.ApiKey == "" {
		switch c.Llm.Provider {
		case ProviderGemini:
			str("GEMINI_API_KEY", &c.Llm.ApiKey)
		default:
			str("OPENAI_API_KEY", &c.Llm.ApiKey)
		}
	}
}
