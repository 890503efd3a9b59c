package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	appName             = "thesisscout"
	configPathEnv       = "THESIS_SCOUT_CONFIG"
	databaseDSNEnv      = "DATABASE_DSN"
	storageDriverEnv    = "STORAGE_DRIVER"
	logLevelEnv         = "LOG_LEVEL"
	openAIAPIKeyEnv     = "OPENAI_API_KEY"
	openAIBaseURLEnv    = "OPENAI_BASE_URL"
	embeddingServiceEnv = "EMBEDDING_SERVICE_URL"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Fetcher       FetcherConfig      `yaml:"fetcher"`
	Discovery     DiscoveryConfig    `yaml:"discovery"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	AI            AIConfig           `yaml:"ai"`
	Embedding     EmbeddingConfig    `yaml:"embedding"`
	Matcher       MatcherConfig      `yaml:"matcher"`
	Storage       StorageConfig      `yaml:"storage"`
	Server        ServerConfig       `yaml:"server"`
	Monitor       MonitorConfig      `yaml:"monitor"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FetcherConfig tunes HTTP retrieval of index and article pages.
type FetcherConfig struct {
	ConnectTimeout     time.Duration `yaml:"connectTimeout"`
	TotalTimeout       time.Duration `yaml:"totalTimeout"`
	MaxAttempts        int           `yaml:"maxAttempts"`
	BaseBackoff        time.Duration `yaml:"baseBackoff"`
	MaxBackoff         time.Duration `yaml:"maxBackoff"`
	BlockThreshold     int           `yaml:"blockThreshold"`
	RateLimit          float64       `yaml:"rateLimit"`
	RateBurst          int           `yaml:"rateBurst"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	MaxBodyBytes       int64         `yaml:"maxBodyBytes"`
	ProfileTTL         time.Duration `yaml:"profileTTL"`
}

// DiscoveryConfig drives the ordered discovery strategies.
type DiscoveryConfig struct {
	MinYield         int          `yaml:"minYield"`
	MaxArticles      int          `yaml:"maxArticles"`
	PlaceholderCount int          `yaml:"placeholderCount"`
	MaxTextChars     int          `yaml:"maxTextChars"`
	FeedPaths        []string     `yaml:"feedPaths"`
	SitemapPaths     []string     `yaml:"sitemapPaths"`
	MaxChildSitemaps int          `yaml:"maxChildSitemaps"`
	Search           SearchConfig `yaml:"search"`
}

// SearchConfig lists the result pages queried by keyword search, in order.
type SearchConfig struct {
	MaxResults int            `yaml:"maxResults"`
	Engines    []SearchEngine `yaml:"engines"`
}

// SearchEngine describes one results page. {query} in URLTemplate is
// replaced by the escaped keyword; the selectors address a result block and
// its parts.
type SearchEngine struct {
	Name            string `yaml:"name"`
	URLTemplate     string `yaml:"urlTemplate"`
	ResultSelector  string `yaml:"resultSelector"`
	TitleSelector   string `yaml:"titleSelector"`
	SnippetSelector string `yaml:"snippetSelector"`
	BylineSelector  string `yaml:"bylineSelector"`
}

// PipelineConfig bounds per-article concurrency.
type PipelineConfig struct {
	Workers        int           `yaml:"workers"`
	ArticleTimeout time.Duration `yaml:"articleTimeout"`
}

// AIConfig defines how to contact an OpenAI-compatible API.
type AIConfig struct {
	APIKey         string        `yaml:"apiKey"`
	BaseURL        string        `yaml:"baseUrl"`
	ChatModel      string        `yaml:"chatModel"`
	EmbeddingModel string        `yaml:"embeddingModel"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Enabled reports whether AI calls should be attempted at all.
func (a AIConfig) Enabled() bool {
	return strings.TrimSpace(a.APIKey) != ""
}

// EmbeddingConfig fixes the vector space shared by theses and articles.
type EmbeddingConfig struct {
	Dimension  int           `yaml:"dimension"`
	CacheTTL   time.Duration `yaml:"cacheTTL"`
	ServiceURL string        `yaml:"serviceUrl"`
	ServiceKey string        `yaml:"serviceKey"`
}

// MatcherConfig tunes ranking output.
type MatcherConfig struct {
	MinScore float64 `yaml:"minScore"`
	TopK     int     `yaml:"topK"`
}

// StorageConfig selects the history store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig configures the REST API.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// MonitorConfig defines how starred sources are re-checked.
type MonitorConfig struct {
	Interval             time.Duration `yaml:"interval"`
	DigestSize           int           `yaml:"digestSize"`
	NewArticlesPerSource int           `yaml:"newArticlesPerSource"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both bot token and chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// DefaultPath is the config file looked up when neither flag nor env names one.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// Load reads YAML configuration (if present) and applies environment overrides.
// An explicit path that cannot be read or parsed is an error; the implicit
// XDG location is optional.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := true
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path == "" {
		path = DefaultPath()
		explicit = false
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	case explicit || !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.clamp()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the application cannot run with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Discovery.MinYield < 1 {
		return fmt.Errorf("config: discovery minYield must be at least 1, got %d", c.Discovery.MinYield)
	}
	if c.Discovery.MaxArticles < 1 {
		return fmt.Errorf("config: discovery maxArticles must be at least 1, got %d", c.Discovery.MaxArticles)
	}
	for _, e := range c.Discovery.Search.Engines {
		if e.Name == "" || !strings.Contains(e.URLTemplate, "{query}") || e.ResultSelector == "" {
			return fmt.Errorf("config: search engine %q needs a name, a {query} urlTemplate and a resultSelector", e.Name)
		}
	}
	if c.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("config: fetcher maxAttempts must be at least 1, got %d", c.Fetcher.MaxAttempts)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = strings.ToLower(v)
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.AI.APIKey = v
	}

	if v := os.Getenv(openAIBaseURLEnv); v != "" {
		c.AI.BaseURL = v
	}

	if v := os.Getenv(embeddingServiceEnv); v != "" {
		c.Embedding.ServiceURL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

// clamp keeps worker counts inside the supported pool size.
func (c *Config) clamp() {
	if c.Pipeline.Workers < 1 {
		log.Printf("config: workers %d too low, using 1", c.Pipeline.Workers)
		c.Pipeline.Workers = 1
	}
	if c.Pipeline.Workers > 10 {
		log.Printf("config: workers %d too high, using 10", c.Pipeline.Workers)
		c.Pipeline.Workers = 10
	}
	if c.Discovery.PlaceholderCount < 1 {
		c.Discovery.PlaceholderCount = 1
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	f := override.Fetcher
	if f.ConnectTimeout > 0 {
		base.Fetcher.ConnectTimeout = f.ConnectTimeout
	}
	if f.TotalTimeout > 0 {
		base.Fetcher.TotalTimeout = f.TotalTimeout
	}
	if f.MaxAttempts > 0 {
		base.Fetcher.MaxAttempts = f.MaxAttempts
	}
	if f.BaseBackoff > 0 {
		base.Fetcher.BaseBackoff = f.BaseBackoff
	}
	if f.MaxBackoff > 0 {
		base.Fetcher.MaxBackoff = f.MaxBackoff
	}
	if f.BlockThreshold > 0 {
		base.Fetcher.BlockThreshold = f.BlockThreshold
	}
	if f.RateLimit > 0 {
		base.Fetcher.RateLimit = f.RateLimit
	}
	if f.RateBurst > 0 {
		base.Fetcher.RateBurst = f.RateBurst
	}
	if f.InsecureSkipVerify {
		base.Fetcher.InsecureSkipVerify = true
	}
	if f.MaxBodyBytes > 0 {
		base.Fetcher.MaxBodyBytes = f.MaxBodyBytes
	}
	if f.ProfileTTL > 0 {
		base.Fetcher.ProfileTTL = f.ProfileTTL
	}

	d := override.Discovery
	if d.MinYield > 0 {
		base.Discovery.MinYield = d.MinYield
	}
	if d.MaxArticles > 0 {
		base.Discovery.MaxArticles = d.MaxArticles
	}
	if d.PlaceholderCount > 0 {
		base.Discovery.PlaceholderCount = d.PlaceholderCount
	}
	if d.MaxTextChars > 0 {
		base.Discovery.MaxTextChars = d.MaxTextChars
	}
	if len(d.FeedPaths) > 0 {
		base.Discovery.FeedPaths = d.FeedPaths
	}
	if len(d.SitemapPaths) > 0 {
		base.Discovery.SitemapPaths = d.SitemapPaths
	}
	if d.MaxChildSitemaps > 0 {
		base.Discovery.MaxChildSitemaps = d.MaxChildSitemaps
	}
	if d.Search.MaxResults > 0 {
		base.Discovery.Search.MaxResults = d.Search.MaxResults
	}
	if len(d.Search.Engines) > 0 {
		base.Discovery.Search.Engines = d.Search.Engines
	}

	if override.Pipeline.Workers != 0 {
		base.Pipeline.Workers = override.Pipeline.Workers
	}
	if override.Pipeline.ArticleTimeout > 0 {
		base.Pipeline.ArticleTimeout = override.Pipeline.ArticleTimeout
	}

	if override.AI.APIKey != "" {
		base.AI.APIKey = override.AI.APIKey
	}
	if override.AI.BaseURL != "" {
		base.AI.BaseURL = override.AI.BaseURL
	}
	if override.AI.ChatModel != "" {
		base.AI.ChatModel = override.AI.ChatModel
	}
	if override.AI.EmbeddingModel != "" {
		base.AI.EmbeddingModel = override.AI.EmbeddingModel
	}
	if override.AI.Timeout > 0 {
		base.AI.Timeout = override.AI.Timeout
	}

	if override.Embedding.Dimension != 0 {
		base.Embedding.Dimension = override.Embedding.Dimension
	}
	if override.Embedding.CacheTTL > 0 {
		base.Embedding.CacheTTL = override.Embedding.CacheTTL
	}
	if override.Embedding.ServiceURL != "" {
		base.Embedding.ServiceURL = override.Embedding.ServiceURL
	}
	if override.Embedding.ServiceKey != "" {
		base.Embedding.ServiceKey = override.Embedding.ServiceKey
	}

	if override.Matcher.MinScore > 0 {
		base.Matcher.MinScore = override.Matcher.MinScore
	}
	if override.Matcher.TopK > 0 {
		base.Matcher.TopK = override.Matcher.TopK
	}

	if override.Storage.Driver != "" {
		base.Storage.Driver = strings.ToLower(override.Storage.Driver)
	}
	if override.Storage.DSN != "" {
		base.Storage.DSN = override.Storage.DSN
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if len(override.Server.AllowedOrigins) > 0 {
		base.Server.AllowedOrigins = override.Server.AllowedOrigins
	}

	if override.Monitor.Interval > 0 {
		base.Monitor.Interval = override.Monitor.Interval
	}
	if override.Monitor.DigestSize > 0 {
		base.Monitor.DigestSize = override.Monitor.DigestSize
	}
	if override.Monitor.NewArticlesPerSource > 0 {
		base.Monitor.NewArticlesPerSource = override.Monitor.NewArticlesPerSource
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

// Default returns the built-in configuration without file or env input.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Fetcher: FetcherConfig{
			ConnectTimeout: 10 * time.Second,
			TotalTimeout:   30 * time.Second,
			MaxAttempts:    3,
			BaseBackoff:    500 * time.Millisecond,
			MaxBackoff:     4 * time.Second,
			BlockThreshold: 3,
			RateLimit:      2,
			RateBurst:      2,
			MaxBodyBytes:   5 << 20,
			ProfileTTL:     30 * time.Minute,
		},
		Discovery: DiscoveryConfig{
			MinYield:         5,
			MaxArticles:      20,
			PlaceholderCount: 3,
			MaxTextChars:     2000,
			FeedPaths:        []string{"/feed", "/rss", "/rss.xml", "/feed.xml", "/atom.xml"},
			SitemapPaths:     []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap-posts.xml"},
			MaxChildSitemaps: 3,
			Search: SearchConfig{
				MaxResults: 10,
				Engines: []SearchEngine{
					{
						Name:            "scholar",
						URLTemplate:     "https://scholar.google.com/scholar?q={query}",
						ResultSelector:  "div.gs_r.gs_or.gs_scl",
						TitleSelector:   "h3.gs_rt",
						SnippetSelector: ".gs_rs",
						BylineSelector:  ".gs_a",
					},
					{
						Name:            "patents",
						URLTemplate:     "https://patents.google.com/?q=({query})&oq={query}&sort=new",
						ResultSelector:  "article.result, div.result",
						TitleSelector:   "h3, h4, .title",
						SnippetSelector: ".abstract, .snippet",
						BylineSelector:  ".metadata, .inventor",
					},
				},
			},
		},
		Pipeline: PipelineConfig{Workers: 5, ArticleTimeout: 45 * time.Second},
		AI: AIConfig{
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-ada-002",
			Timeout:        30 * time.Second,
		},
		Embedding: EmbeddingConfig{Dimension: 1536, CacheTTL: time.Hour},
		Matcher:   MatcherConfig{MinScore: 0, TopK: 20},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DSN:    filepath.Join(xdg.DataHome, appName, "history.db"),
		},
		Server:  ServerConfig{Addr: ":8080", AllowedOrigins: []string{"*"}},
		Monitor: MonitorConfig{Interval: 24 * time.Hour, DigestSize: 5, NewArticlesPerSource: 10},
	}
}
