package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr      string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout   time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout  time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout   time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	PublicBaseURL string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	CORSOrigins   string        `env:"CORS_ORIGINS"`
	JWTSecret     string        `env:"JWT_SECRET"`
	MaxUploadMB   int64         `env:"MAX_UPLOAD_MB" envDefault:"200"`

	StorageDir string   `env:"STORAGE_DIR" envDefault:"./data"`
	S3         S3Config `envPrefix:"S3_"`

	MQTT MQTTConfig `envPrefix:"MQTT_"`

	Providers ProviderConfig

	// Locale routing tables, "locale:provider" pairs.
	RecognitionRoutes map[string]string `env:"RECOGNITION_ROUTES" envDefault:"en:deepgram,es:elevenlabs,ja:elevenlabs,zh:tencent"`
	SummaryRoutes     map[string]string `env:"SUMMARY_ROUTES" envDefault:"en:openai,es:gemini,ja:gemini,zh:openai"`
	ScriptProvider    string            `env:"SCRIPT_PROVIDER" envDefault:"openai"`
	TTSProvider       string            `env:"TTS_PROVIDER" envDefault:"elevenlabs"`
	VoicePolicyFile   string            `env:"VOICE_POLICY_FILE"`

	PollInterval time.Duration `env:"RECOGNITION_POLL_INTERVAL" envDefault:"5s"`
	PollTimeout  time.Duration `env:"RECOGNITION_POLL_TIMEOUT" envDefault:"10m"`

	InboxDir       string `env:"INBOX_DIR"`
	InboxUserID    string `env:"INBOX_USER_ID" envDefault:"local"`
	InboxLocale    string `env:"INBOX_LOCALE" envDefault:"en"`
	InboxWorkers   int    `env:"INBOX_WORKERS" envDefault:"2"`
	InboxQueueSize int    `env:"INBOX_QUEUE_SIZE" envDefault:"32"`

	Pricing PricingConfig `envPrefix:"PRICE_"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3-compatible object store.
type S3Config struct {
	Bucket        string        `env:"BUCKET"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	Endpoint      string        `env:"ENDPOINT"`
	AccessKey     string        `env:"ACCESS_KEY"`
	SecretKey     string        `env:"SECRET_KEY"`
	Prefix        string        `env:"PREFIX"`
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
	LocalCache    bool          `env:"LOCAL_CACHE" envDefault:"true"`
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

type MQTTConfig struct {
	BrokerURL   string `env:"BROKER_URL"`
	ClientID    string `env:"CLIENT_ID" envDefault:"audiocast"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	TopicPrefix string `env:"TOPIC_PREFIX" envDefault:"audiocast"`
}

func (c MQTTConfig) Enabled() bool { return c.BrokerURL != "" }

// ProviderConfig holds vendor credentials. Empty keys are allowed at startup;
// adapters report configuration_missing when they are actually called.
type ProviderConfig struct {
	DeepgramAPIKey  string `env:"DEEPGRAM_API_KEY"`
	DeepgramModel   string `env:"DEEPGRAM_MODEL" envDefault:"nova-3"`
	DeepgramBaseURL string `env:"DEEPGRAM_BASE_URL" envDefault:"https://api.deepgram.com"`

	ElevenLabsAPIKey   string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsBaseURL  string `env:"ELEVENLABS_BASE_URL" envDefault:"https://api.elevenlabs.io"`
	ElevenLabsSTTModel string `env:"ELEVENLABS_STT_MODEL" envDefault:"scribe_v1"`
	ElevenLabsTTSModel string `env:"ELEVENLABS_TTS_MODEL" envDefault:"eleven_multilingual_v2"`

	TencentEndpoint string `env:"TENCENT_ASR_ENDPOINT" envDefault:"https://asr.tencentcloudapi.com"`
	TencentToken    string `env:"TENCENT_ASR_TOKEN"`
	TencentEngine   string `env:"TENCENT_ASR_ENGINE" envDefault:"16k_zh"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	MiniMaxAPIKey  string `env:"MINIMAX_API_KEY"`
	MiniMaxGroupID string `env:"MINIMAX_GROUP_ID"`
	MiniMaxBaseURL string `env:"MINIMAX_BASE_URL" envDefault:"https://api.minimax.chat"`
	MiniMaxModel   string `env:"MINIMAX_MODEL" envDefault:"speech-02-hd"`
}

type PricingConfig struct {
	CreditsPerAudioMinute int64 `env:"AUDIO_MINUTE" envDefault:"1"`
	CreditsPer1KChars     int64 `env:"1K_CHARS" envDefault:"2"`
	MinimumCharge         int64 `env:"MINIMUM" envDefault:"1"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	StorageDir  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.StorageDir != "" {
		cfg.StorageDir = overrides.StorageDir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("RECOGNITION_POLL_INTERVAL must be positive")
	}
	if c.PollTimeout < c.PollInterval {
		return fmt.Errorf("RECOGNITION_POLL_TIMEOUT (%s) is shorter than the poll interval (%s)", c.PollTimeout, c.PollInterval)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	return nil
}
