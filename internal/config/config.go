package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the portal.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	S3         S3Config         `mapstructure:"s3"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Generation GenerationConfig `mapstructure:"generation"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Content    ContentConfig    `mapstructure:"content"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	// MaxUploadBytes bounds the multipart body accepted by the content endpoints.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	// PublicBaseURL is prefixed to object keys to form the stored file URL.
	PublicBaseURL string `mapstructure:"public_base_url"`
	UseSSL        bool   `mapstructure:"use_ssl"`
}

// AuthConfig configures verification of identity-provider tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// AdminKeyHash is a bcrypt hash of the shared admin key accepted in X-Admin-Key.
	AdminKeyHash string `mapstructure:"admin_key_hash"`
	// TrustQueryIdentity accepts userId/isAdmin request parameters from
	// callers that present no token.
	TrustQueryIdentity bool `mapstructure:"trust_query_identity"`
}

// GenerationConfig selects and tunes the generative text provider.
type GenerationConfig struct {
	Provider  string        `mapstructure:"provider"` // gemini | openai
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	ChunkSize int           `mapstructure:"chunk_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RedisConfig is optional. An empty Addr disables the generation cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ContentConfig struct {
	MaxPageSize int `mapstructure:"max_page_size"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"` // dev | prod
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory is loaded into the environment first.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m") // create requests wait on generation
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_bytes", 64<<20)
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "study_portal")
	// Empty defaults bind the keys so env-only deployments unmarshal them.
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.public_base_url", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_key_hash", "")
	v.SetDefault("auth.trust_query_identity", true)
	v.SetDefault("generation.provider", "gemini")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.model", "gemini-1.5-flash")
	v.SetDefault("generation.base_url", "https://api.openai.com")
	v.SetDefault("generation.chunk_size", 10000)
	v.SetDefault("generation.timeout", "2m")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("content.max_page_size", 200)
	v.SetDefault("log.mode", "prod")
}
