package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración del servicio (Viper: variables de entorno y opcionalmente .env).
type Config struct {
	App     AppConfig
	DB      DBConfig
	JWT     JWTConfig
	HTTP    HTTPConfig
	DGII    DGIIConfig
	Storage StorageConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
	Company  string // company_id por defecto para documentos sin empresa explícita
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	MinConns    int
	PreferIPv4  bool // resuelve el host a IPv4 antes de conectar (contenedores sin IPv6)
	AutoMigrate bool
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN arma el connection string con la contraseña escapada.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT de operadores.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DGIIConfig credenciales y plazos frente a la DGII. Ningún valor sensible tiene default.
type DGIIConfig struct {
	Environment     string // test | cert | prod
	BaseURL         string // reemplaza la URL del ambiente (sandbox local, proxy)
	Username        string
	Password        string
	CertPath        string // .pem, .p12 o .pfx
	KeyPath         string // llave PEM si CertPath es solo el certificado
	CertPassword    string
	SubmitTimeout   time.Duration
	TrackTimeout    time.Duration
	TrackRate       float64 // consultas por segundo
	PollConcurrency int
	PollInterval    time.Duration // 0 desactiva el sondeo en segundo plano
	PollBatchSize   int
}

// SubmissionEnabled indica si hay credenciales para hablar con la DGII.
func (c DGIIConfig) SubmissionEnabled() bool {
	return c.Username != "" && c.Password != "" && c.CertPath != ""
}

// StorageConfig espejo opcional de artefactos firmados en S3.
type StorageConfig struct {
	Bucket          string // vacío = desactivado
	Region          string
	Endpoint        string // S3 compatible (MinIO, R2)
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	PresignTTL      time.Duration
}

// Enabled indica si hay bucket configurado.
func (c StorageConfig) Enabled() bool { return c.Bucket != "" }

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "ecf-dgii"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
			Company:  getString(v, "APP_COMPANY_ID", ""),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "ecf_dgii"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
			MaxConns:    getInt(v, "DB_MAX_CONNS", 25),
			MinConns:    getInt(v, "DB_MIN_CONNS", 2),
			PreferIPv4:  getBool(v, "DB_PREFER_IPV4", false),
			AutoMigrate: getBool(v, "DB_AUTO_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "ecf-dgii"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		DGII: DGIIConfig{
			Environment:     strings.ToLower(getString(v, "DGII_ENVIRONMENT", "test")),
			BaseURL:         getString(v, "DGII_BASE_URL", ""),
			Username:        getString(v, "DGII_USERNAME", ""),
			Password:        getString(v, "DGII_PASSWORD", ""),
			CertPath:        getString(v, "DGII_CERT_PATH", ""),
			KeyPath:         getString(v, "DGII_KEY_PATH", ""),
			CertPassword:    getString(v, "DGII_CERT_PASSWORD", ""),
			SubmitTimeout:   getSeconds(v, "DGII_SUBMIT_TIMEOUT_SECONDS", 60),
			TrackTimeout:    getSeconds(v, "DGII_TRACK_TIMEOUT_SECONDS", 30),
			TrackRate:       getFloat(v, "DGII_TRACK_RATE_PER_SECOND", 5),
			PollConcurrency: getInt(v, "DGII_POLL_CONCURRENCY", 4),
			PollInterval:    getSeconds(v, "DGII_POLL_INTERVAL_SECONDS", 0),
			PollBatchSize:   getInt(v, "DGII_POLL_BATCH_SIZE", 50),
		},
		Storage: StorageConfig{
			Bucket:          getString(v, "S3_BUCKET", ""),
			Region:          getString(v, "S3_REGION", "us-east-1"),
			Endpoint:        getString(v, "S3_ENDPOINT", ""),
			AccessKeyID:     getString(v, "S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getString(v, "S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getString(v, "S3_PREFIX", "ecf"),
			PresignTTL:      getSeconds(v, "S3_PRESIGN_TTL_SECONDS", 900),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DGII.Environment {
	case "test", "cert", "prod":
	default:
		return fmt.Errorf("config: DGII_ENVIRONMENT inválido %q (test, cert, prod)", c.DGII.Environment)
	}
	if c.DGII.PollConcurrency < 1 {
		return fmt.Errorf("config: DGII_POLL_CONCURRENCY debe ser >= 1")
	}
	if c.DGII.TrackRate < 0 {
		return fmt.Errorf("config: DGII_TRACK_RATE_PER_SECOND no puede ser negativo")
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getFloat(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func getSeconds(v *viper.Viper, key string, def int) time.Duration {
	return time.Duration(getInt(v, key, def)) * time.Second
}
