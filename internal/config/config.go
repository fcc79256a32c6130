package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings and retry policy.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	Model             string `yaml:"model" mapstructure:"model"`
	MaxTokens         int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries        int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryWaitSecs     int    `yaml:"retry_wait_secs" mapstructure:"retry_wait_secs"`
	TransientRetries  int    `yaml:"transient_retries" mapstructure:"transient_retries"`
	TransientWaitSecs int    `yaml:"transient_wait_secs" mapstructure:"transient_wait_secs"`
}

// JinaConfig holds reader-proxy settings.
type JinaConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries           int     `yaml:"retries" mapstructure:"retries"`
	RetryWaitSecs     int     `yaml:"retry_wait_secs" mapstructure:"retry_wait_secs"`
	MinLength         int     `yaml:"min_length" mapstructure:"min_length"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// BrowserConfig configures the headless browser used for rendered-page
// extraction and screenshots.
type BrowserConfig struct {
	Headless               bool `yaml:"headless" mapstructure:"headless"`
	ViewportWidth          int  `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight         int  `yaml:"viewport_height" mapstructure:"viewport_height"`
	NavTimeoutSecs         int  `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	RenderSettleMillis     int  `yaml:"render_settle_millis" mapstructure:"render_settle_millis"`
	ScreenshotSettleMillis int  `yaml:"screenshot_settle_millis" mapstructure:"screenshot_settle_millis"`
	JPEGQuality            int  `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// PipelineConfig configures the qualification run.
type PipelineConfig struct {
	Profile        string `yaml:"profile" mapstructure:"profile"`
	ProfilesFile   string `yaml:"profiles_file" mapstructure:"profiles_file"`
	Workers        int    `yaml:"workers" mapstructure:"workers"`
	UseScreenshots bool   `yaml:"use_screenshots" mapstructure:"use_screenshots"`
	RenderFallback bool   `yaml:"render_fallback" mapstructure:"render_fallback"`
	PageTextLimit  int    `yaml:"page_text_limit" mapstructure:"page_text_limit"`
	InputFile      string `yaml:"input_file" mapstructure:"input_file"`
	OutputFile     string `yaml:"output_file" mapstructure:"output_file"`
	GCEvery        int    `yaml:"gc_every" mapstructure:"gc_every"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ICP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.max_retries", 3)
	v.SetDefault("anthropic.retry_wait_secs", 10)
	v.SetDefault("anthropic.transient_retries", 3)
	v.SetDefault("anthropic.transient_wait_secs", 2)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.timeout_secs", 25)
	v.SetDefault("jina.retries", 3)
	v.SetDefault("jina.retry_wait_secs", 2)
	v.SetDefault("jina.min_length", 100)
	v.SetDefault("jina.requests_per_second", 5)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1440)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.nav_timeout_secs", 20)
	v.SetDefault("browser.render_settle_millis", 1500)
	v.SetDefault("browser.screenshot_settle_millis", 2000)
	v.SetDefault("browser.jpeg_quality", 65)
	v.SetDefault("pipeline.profile", "software_product")
	v.SetDefault("pipeline.profiles_file", "")
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.use_screenshots", false)
	v.SetDefault("pipeline.render_fallback", true)
	v.SetDefault("pipeline.page_text_limit", 6000)
	v.SetDefault("pipeline.input_file", "input.csv")
	v.SetDefault("pipeline.output_file", "output.csv")
	v.SetDefault("pipeline.gc_every", 15)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateCredentials checks that the API keys required for a real run are
// present. Missing keys are a fatal startup failure.
func (c *Config) ValidateCredentials() error {
	var missing []string
	if c.Anthropic.Key == "" {
		missing = append(missing, "ICP_ANTHROPIC_KEY (required: classification)")
	}
	if c.Jina.Key == "" {
		missing = append(missing, "ICP_JINA_KEY (required: page text extraction)")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required API keys:\n  %s", strings.Join(missing, "\n  "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
