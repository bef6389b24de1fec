package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when --config is not provided.
const DefaultConfigPath = "config.yml"

// AppConfig is the full runtime configuration, loaded from one YAML file.
type AppConfig struct {
	App       AppSection       `yaml:"app"`
	Database  DatabaseSection  `yaml:"database"`
	Redis     RedisSection     `yaml:"redis"`
	Auth      AuthSection      `yaml:"auth"`
	AI        AISection        `yaml:"ai"`
	Cache     CacheSection     `yaml:"cache"`
	Learning  LearningSection  `yaml:"learning"`
	Search    SearchSection    `yaml:"search"`
	Retrieval RetrievalSection `yaml:"retrieval"`
	Archive   ArchiveSection   `yaml:"archive"`
	Gateway   GatewaySection   `yaml:"gateway"`
	CORS      CORSSection      `yaml:"cors"`
	Log       LogSection       `yaml:"log"`
	Env       string           `yaml:"env"` // "development" | "production"
}

type AppSection struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type DatabaseSection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Params   string `yaml:"params"`
}

type RedisSection struct {
	URL string `yaml:"url"`
}

type AuthSection struct {
	Secret            string `yaml:"secret"`
	AdminPasswordHash string `yaml:"admin_password_hash"` // bcrypt hash
	TokenTTLHours     int    `yaml:"token_ttl_hours"`
}

type AISection struct {
	Provider       string `yaml:"provider"` // openai | anthropic | openai-compatible
	APIKey         string `yaml:"api_key"`
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CacheSection struct {
	TTLHours int `yaml:"ttl_hours"`
	// ResetHitsOnRegenerate makes a regeneration overwrite start the hit
	// counter from zero. The default preserves it, keeping popularity tied
	// to the query rather than to any particular answer.
	ResetHitsOnRegenerate bool           `yaml:"reset_hits_on_regenerate"`
	Quality               QualitySection `yaml:"quality"`
}

type QualitySection struct {
	MinPositive int `yaml:"min_positive"`
	ExtendHours int `yaml:"extend_hours"`
}

type LearningSection struct {
	Enabled       bool           `yaml:"enabled"`
	IntervalHours int            `yaml:"interval_hours"`
	Workers       int            `yaml:"workers"`
	PreWarm       PreWarmSection `yaml:"prewarm"`
	Improve       ImproveSection `yaml:"improve"`
	Cleanup       CleanupSection `yaml:"cleanup"`
}

type PreWarmSection struct {
	Days     int `yaml:"days"`
	MinCount int `yaml:"min_count"`
	Limit    int `yaml:"limit"`
}

type ImproveSection struct {
	MinNegative int `yaml:"min_negative"`
}

type CleanupSection struct {
	MaxAgeDays  int `yaml:"max_age_days"`
	MinHitCount int `yaml:"min_hit_count"`
}

type SearchSection struct {
	Arxiv       ArxivSection       `yaml:"arxiv"`
	HuggingFace HuggingFaceSection `yaml:"huggingface"`
}

type ArxivSection struct {
	Enabled    bool `yaml:"enabled"`
	MaxResults int  `yaml:"max_results"`
}

type HuggingFaceSection struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

type RetrievalSection struct {
	Dir        string  `yaml:"dir"`
	Collection string  `yaml:"collection"`
	TopK       int     `yaml:"top_k"`
	MinScore   float64 `yaml:"min_score"`
}

type ArchiveSection struct {
	Enabled       bool      `yaml:"enabled"`
	RetentionDays int       `yaml:"retention_days"`
	S3            S3Options `yaml:"s3"`
}

type S3Options struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyleAccess bool   `yaml:"path_style_access"`
	CustomDomain    string `yaml:"custom_domain"`
}

type GatewaySection struct {
	Enabled bool `yaml:"enabled"`
	// AlertWebhookURL receives ops notifications (rate-limit abuse, learning
	// cycles that finish with errors). Empty disables alerts.
	AlertWebhookURL string `yaml:"alert_webhook_url"`
}

type CORSSection struct {
	Origins []string `yaml:"origins"`
}

type LogSection struct {
	Dir string `yaml:"dir"`
}

// Load reads and validates the YAML config at path.
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		App: AppSection{Name: "querymind-core", Port: 8000},
		Database: DatabaseSection{
			Host:   "127.0.0.1",
			Port:   3306,
			User:   "root",
			Params: "charset=utf8mb4&parseTime=True&loc=Local",
		},
		Redis: RedisSection{URL: "redis://localhost:6379/0"},
		Auth:  AuthSection{TokenTTLHours: 168},
		AI:    AISection{Provider: "openai", TimeoutSeconds: 30, EmbeddingModel: "text-embedding-3-small"},
		Cache: CacheSection{
			TTLHours: 24,
			Quality:  QualitySection{MinPositive: 3, ExtendHours: 72},
		},
		Learning: LearningSection{
			Enabled:       true,
			IntervalHours: 24,
			Workers:       4,
			PreWarm:       PreWarmSection{Days: 7, MinCount: 2, Limit: 20},
			Improve:       ImproveSection{MinNegative: 1},
			Cleanup:       CleanupSection{MaxAgeDays: 30, MinHitCount: 2},
		},
		Search: SearchSection{
			Arxiv:       ArxivSection{Enabled: true, MaxResults: 3},
			HuggingFace: HuggingFaceSection{Enabled: true, Limit: 3},
		},
		Retrieval: RetrievalSection{
			Dir:        "./data/chroma",
			Collection: "documents",
			TopK:       5,
			MinScore:   0.3,
		},
		Archive: ArchiveSection{RetentionDays: 90},
		Gateway: GatewaySection{Enabled: true},
		Env:     "production",
	}
}

func (c *AppConfig) normalize() {
	c.App.Name = strings.TrimSpace(c.App.Name)
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.AI.Endpoint = strings.TrimSpace(c.AI.Endpoint)
	c.AI.Model = strings.TrimSpace(c.AI.Model)
	c.Retrieval.Dir = strings.TrimSpace(c.Retrieval.Dir)
	c.Retrieval.Collection = strings.TrimSpace(c.Retrieval.Collection)
	c.Log.Dir = strings.TrimSpace(c.Log.Dir)

	if c.Learning.Workers < 1 {
		c.Learning.Workers = 1
	}
	if c.AI.TimeoutSeconds < 1 {
		c.AI.TimeoutSeconds = 30
	}
	if c.Cache.TTLHours < 1 {
		c.Cache.TTLHours = 24
	}
	if c.Retrieval.TopK < 1 {
		c.Retrieval.TopK = 5
	}

	origins := make([]string, 0, len(c.CORS.Origins))
	for _, o := range c.CORS.Origins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORS.Origins = origins
}

func (c *AppConfig) validate() error {
	if c.App.Port < 1 || c.App.Port > 65535 {
		return fmt.Errorf("invalid app.port: %d", c.App.Port)
	}
	if strings.TrimSpace(c.Database.Name) == "" {
		return fmt.Errorf("database.name is required")
	}
	if strings.TrimSpace(c.Database.User) == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if c.Archive.Enabled {
		s3 := c.Archive.S3
		if s3.Bucket == "" || s3.Region == "" || s3.AccessKeyID == "" || s3.SecretAccessKey == "" {
			return fmt.Errorf("archive.s3 requires bucket, region, access_key_id and secret_access_key")
		}
	}
	return nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env == "development" }

// DSN builds the MySQL connection string.
func (c *AppConfig) DSN() string {
	params := c.Database.Params
	if params == "" {
		params = "charset=utf8mb4&parseTime=True&loc=Local"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port,
		c.Database.Name, params)
}
