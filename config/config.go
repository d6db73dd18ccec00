package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MQBackendNone     = "none"
	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"

	StorageBackendNone  = "none"
	StorageBackendMinio = "minio"
	StorageBackendGCS   = "gcs"

	DBBackendPostgres = "postgres"
	DBBackendMemory   = "memory"
)

type Config struct {
	ServerPort int
	Database   DatabaseConfig
	Auth       AuthConfig
	Log        LogConfig
	MQ         MQConfig
	Storage    StorageConfig
	Seed       SeedConfig
}

// DatabaseConfig describes the credential store. The memory backend keeps
// everything in process and ignores the connection settings.
type DatabaseConfig struct {
	Backend  string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// AuthConfig controls token issuance. Issuer overrides the request URL
// normally used as the "iss" claim. TrustForwardedProto takes the scheme of
// that URL from X-Forwarded-Proto; enable it only behind a proxy that sets it.
type AuthConfig struct {
	JWTSecret           string
	Issuer              string
	TrustForwardedProto bool
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
}

type LogConfig struct {
	Level string
}

type MQConfig struct {
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL           string
	Exchange      string
	QueueDurable  bool
	PrefetchCount int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string
}

// SeedConfig selects the manifest applied by "seed apply" and, when OnStart
// is set, by the server at startup. File wins over ObjectKey; with neither
// set the embedded default manifest is used.
type SeedConfig struct {
	OnStart   bool
	File      string
	ObjectKey string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Backend:  strings.ToLower(getEnv("DB_BACKEND", DBBackendPostgres)),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "usersvc"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "usersvc"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	authConfig := AuthConfig{
		JWTSecret:           strings.TrimSpace(getEnv("JWT_SECRET", "")),
		Issuer:              strings.TrimSpace(getEnv("JWT_ISSUER", "")),
		TrustForwardedProto: getEnvBool("JWT_TRUST_FORWARDED_PROTO", false),
		AccessTokenTTL:      getEnvDuration("JWT_ACCESS_TTL", 10*time.Minute),
		RefreshTokenTTL:     getEnvDuration("JWT_REFRESH_TTL", 30*time.Minute),
	}

	mqConfig := MQConfig{
		Backend: strings.ToLower(getEnv("MQ_BACKEND", MQBackendNone)),
		Channel: getEnv("MQ_CHANNEL", "account-events"),
		RabbitMQ: RabbitMQConfig{
			URL:           getEnv("RABBITMQ_URL", ""),
			Exchange:      getEnv("RABBITMQ_EXCHANGE", ""),
			QueueDurable:  getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			PrefetchCount: getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	storageConfig := StorageConfig{
		Backend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendNone)),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "usersvc"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Auth:       authConfig,
		Log:        LogConfig{Level: getEnv("LOG_LEVEL", "info")},
		MQ:         mqConfig,
		Storage:    storageConfig,
		Seed: SeedConfig{
			OnStart:   getEnvBool("SEED_ON_START", false),
			File:      getEnv("SEED_FILE", ""),
			ObjectKey: getEnv("SEED_OBJECT_KEY", ""),
		},
	}
}

// Validate reports every missing or unknown setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}

	switch c.Database.Backend {
	case DBBackendPostgres, DBBackendMemory, "":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_BACKEND %q", c.Database.Backend))
	}

	switch c.MQ.Backend {
	case MQBackendNone, "":
	case MQBackendRabbitMQ:
		if c.MQ.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for the rabbitmq backend"))
		}
	case MQBackendPubSub:
		if c.MQ.PubSub.ProjectID == "" {
			errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required for the pubsub backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MQ_BACKEND %q", c.MQ.Backend))
	}

	switch c.Storage.Backend {
	case StorageBackendNone, "":
	case StorageBackendMinio:
		if c.Storage.Minio.AccessKey == "" || c.Storage.Minio.SecretKey == "" {
			errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend"))
		}
	case StorageBackendGCS:
		if c.Storage.GCS.Bucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}

	if c.Seed.ObjectKey != "" && c.Seed.File == "" && (c.Storage.Backend == StorageBackendNone || c.Storage.Backend == "") {
		errs = append(errs, errors.New("SEED_OBJECT_KEY requires a STORAGE_BACKEND"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
