package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Filestore   FilestoreConfig   `mapstructure:"filestore"`
	S3          S3Config          `mapstructure:"s3"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	Migration   MigrationConfig   `mapstructure:"migration"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// FilestoreConfig points at the local directory holding attachment bytes
// before (or instead of) remote offload.
type FilestoreConfig struct {
	Root string `mapstructure:"root"`
}

// S3Config carries client-wide settings. Credentials and bucket normally live
// in the remote_configs collection; the Name/AccessKeyID/SecretAccessKey/
// BucketName/Region fields only seed the first active configuration when the
// collection is empty.
type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	PathStyle       bool          `mapstructure:"path_style"`
	DefaultRegion   string        `mapstructure:"default_region"`
	PresignReads    bool          `mapstructure:"presign_reads"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
	Name            string        `mapstructure:"name"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BucketName      string        `mapstructure:"bucket_name"`
	Region          string        `mapstructure:"region"`
}

// HasSeed reports whether bootstrap credentials were supplied.
func (c S3Config) HasSeed() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

type AttachmentsConfig struct {
	// PreviewModels lists the models whose binary fields are rendered inline
	// by the host UI and therefore keep a decoy payload locally.
	PreviewModels []string `mapstructure:"preview_models"`
}

type MigrationConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// AdminConfig seeds the first admin account. Public registration only
// creates users.
type AdminConfig struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// HasSeed reports whether admin credentials were supplied.
func (c AdminConfig) HasSeed() bool {
	return c.Email != "" && c.Password != ""
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
// path may be a directory (config.yaml is looked up inside it) or a file.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// server.address -> SERVER_ADDRESS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Running on defaults and env vars only.
		err = nil
	} else if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return
	}

	if config.S3.Region == "" {
		config.S3.Region = config.S3.DefaultRegion
	}
	if config.Migration.Concurrency <= 0 {
		config.Migration.Concurrency = 1
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "attachment_offload")
	v.SetDefault("filestore.root", "./filestore")
	v.SetDefault("s3.default_region", "us-east-1")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("s3.presign_reads", false)
	v.SetDefault("s3.presign_expiry", "15m")
	v.SetDefault("s3.name", "default")
	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("attachments.preview_models", []string{"res.partner"})
	v.SetDefault("migration.concurrency", 1)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")
	v.SetDefault("admin.name", "Administrator")
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
