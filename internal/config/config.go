package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Log store backends selectable through LOG_STORE.
const (
	StoreXLSX     = "xlsx"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// QR image storage backends selectable through QR_STORAGE.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LogConfig selects and locates the certificate log.
type LogConfig struct {
	Store      string
	XLSXPath   string
	SQLitePath string
}

// QRConfig controls QR rendering and where issued QR images are kept.
type QRConfig struct {
	Storage string
	Dir     string
	Level   string
	Size    int
}

// KafkaConfig enables issue events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AppConfig is everything cmd/api and cmd/certctl read from the environment.
type AppConfig struct {
	AppHost       string
	Port          string
	PublicBaseURL string
	LogLevel      string
	Timezone      string
	LayoutFile    string
	MaxUploadMB   int
	Log           LogConfig
	QR            QRConfig
	Database      DatabaseConfig
	MinIO         MinIOConfig
	Kafka         KafkaConfig
}

// Load reads the configuration from the environment. The binaries import
// godotenv/autoload, so a .env file fills in variables that are not set.
// Load never fails; call Validate before use.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:       getEnv("APP_HOST", "localhost:8080"),
		Port:          getEnv("PORT", "8080"), // default only for non-sensitive value
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Timezone:      getEnv("APP_TIMEZONE", "Local"),
		LayoutFile:    getEnv("STAMP_LAYOUT_FILE", ""),
		MaxUploadMB:   getEnvInt("MAX_UPLOAD_MB", 20),
		Log: LogConfig{
			Store:      strings.ToLower(getEnv("LOG_STORE", StoreXLSX)),
			XLSXPath:   getEnv("LOG_XLSX_PATH", "data/certificate_logs.xlsx"),
			SQLitePath: getEnv("LOG_SQLITE_PATH", "data/certificates.db"),
		},
		QR: QRConfig{
			Storage: strings.ToLower(getEnv("QR_STORAGE", StorageLocal)),
			Dir:     getEnv("QR_DIR", "data"),
			Level:   getEnv("QR_LEVEL", "medium"),
			Size:    getEnvInt("QR_SIZE", 150),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "certificates"),
		},
	}
}

// Validate reports every setting that cannot work, joined into one error.
// Backend connection details are checked when the backend is opened.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Log.Store {
	case StoreXLSX, StorePostgres, StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_STORE %q", c.Log.Store))
	}
	switch c.QR.Storage {
	case StorageLocal, StorageMinIO:
	default:
		errs = append(errs, fmt.Errorf("unknown QR_STORAGE %q", c.QR.Storage))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	if c.QR.Size <= 0 {
		errs = append(errs, errors.New("QR_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
