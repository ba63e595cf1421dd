package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sentinel/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port           string `mapstructure:"port" yaml:"port"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// Data sources the initial snapshot can be loaded from
const (
	SourceSample   = "sample"
	SourceFile     = "file"
	SourceDatabase = "database"
	SourceAPI      = "api"
)

// DataConfig holds data loading settings
type DataConfig struct {
	Source    string    `mapstructure:"source" yaml:"source"`
	File      string    `mapstructure:"file" yaml:"file"`
	Sheet     string    `mapstructure:"sheet" yaml:"sheet"`
	Rows      int       `mapstructure:"rows" yaml:"rows"`             // sample generator size
	UploadDir string    `mapstructure:"upload_dir" yaml:"upload_dir"` // empty keeps uploads in memory
	API       APIConfig `mapstructure:"api" yaml:"api"`
}

// APIConfig describes a REST endpoint serving quality records as JSON
type APIConfig struct {
	URL        string        `mapstructure:"url" yaml:"url"`
	DataPath   string        `mapstructure:"data_path" yaml:"data_path"`
	Token      string        `mapstructure:"token" yaml:"token"`
	Pagination string        `mapstructure:"pagination" yaml:"pagination"` // none, offset, page or cursor
	PageSize   int           `mapstructure:"page_size" yaml:"page_size"`
	MaxPages   int           `mapstructure:"max_pages" yaml:"max_pages"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver" yaml:"driver"`
	URL            string `mapstructure:"url" yaml:"url"`
	Table          string `mapstructure:"table" yaml:"table"`
	ArchiveReports bool   `mapstructure:"archive_reports" yaml:"archive_reports"` // keep generated reports in the database
}

// AnalysisConfig holds defaults for analysis calls
type AnalysisConfig struct {
	CorrelationThreshold float64 `mapstructure:"correlation_threshold" yaml:"correlation_threshold"`
	AnomalyLimit         int     `mapstructure:"anomaly_limit" yaml:"anomaly_limit"`
	SampleLimit          int     `mapstructure:"sample_limit" yaml:"sample_limit"`
	Seed                 int64   `mapstructure:"seed" yaml:"seed"`
	Contamination        float64 `mapstructure:"contamination" yaml:"contamination"`
	Trees                int     `mapstructure:"trees" yaml:"trees"`
	SubsampleSize        int     `mapstructure:"subsample_size" yaml:"subsample_size"`
	TargetColumn         string  `mapstructure:"target_column" yaml:"target_column"`
	FactorColumn         string  `mapstructure:"factor_column" yaml:"factor_column"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from defaults, an optional YAML file, and
// SENTINEL_* environment variables (SENTINEL_SERVER_PORT, SENTINEL_DATA_FILE, ...).
// Precedence: env > config file > defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", cfgFile)
		}
	} else {
		v.SetConfigName("sentinel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &c, nil
}

// Default returns the configuration Load would produce with no file or environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.max_upload_bytes", 32<<20)

	v.SetDefault("data.source", SourceSample)
	v.SetDefault("data.file", "")
	v.SetDefault("data.sheet", "")
	v.SetDefault("data.rows", 1000)
	v.SetDefault("data.upload_dir", "uploads")
	v.SetDefault("data.api.url", "")
	v.SetDefault("data.api.data_path", "")
	v.SetDefault("data.api.token", "")
	v.SetDefault("data.api.pagination", "none")
	v.SetDefault("data.api.page_size", 500)
	v.SetDefault("data.api.max_pages", 20)
	v.SetDefault("data.api.timeout", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "data.db")
	v.SetDefault("database.table", "manufacturing_data")
	v.SetDefault("database.archive_reports", false)

	v.SetDefault("analysis.correlation_threshold", 0.5)
	v.SetDefault("analysis.anomaly_limit", 50)
	v.SetDefault("analysis.sample_limit", 100)
	v.SetDefault("analysis.seed", 42)
	v.SetDefault("analysis.contamination", 0.1)
	v.SetDefault("analysis.trees", 100)
	v.SetDefault("analysis.subsample_size", 256)
	v.SetDefault("analysis.target_column", "defect_count")
	v.SetDefault("analysis.factor_column", "temperature")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}

	switch c.Data.Source {
	case SourceSample:
		if c.Data.Rows <= 0 {
			return errors.ConfigInvalid("sample rows must be positive")
		}
	case SourceFile:
		if c.Data.File == "" {
			return errors.ConfigInvalid("data file is required when data source is file")
		}
	case SourceDatabase:
		if c.Database.URL == "" {
			return errors.ConfigInvalid("database url is required when data source is database")
		}
		if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
			return errors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
		if c.Database.Table == "" {
			return errors.ConfigInvalid("database table is required")
		}
	case SourceAPI:
		if c.Data.API.URL == "" {
			return errors.ConfigInvalid("api url is required when data source is api")
		}
		switch c.Data.API.Pagination {
		case "", "none", "offset", "page", "cursor":
		default:
			return errors.ConfigInvalid(fmt.Sprintf("unknown api pagination %q", c.Data.API.Pagination))
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown data source %q", c.Data.Source))
	}

	if c.Database.ArchiveReports {
		if c.Database.URL == "" {
			return errors.ConfigInvalid("database url is required to archive reports")
		}
		if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
			return errors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	}

	if c.Analysis.Contamination <= 0 || c.Analysis.Contamination >= 0.5 {
		return errors.ConfigInvalid("contamination must be in (0, 0.5)")
	}
	if c.Analysis.Trees <= 0 || c.Analysis.SubsampleSize < 2 {
		return errors.ConfigInvalid("isolation forest needs at least one tree and a sub-sample of two")
	}
	if c.Analysis.CorrelationThreshold < 0 || c.Analysis.CorrelationThreshold > 1 {
		return errors.ConfigInvalid("correlation threshold must be in [0, 1]")
	}
	return nil
}
