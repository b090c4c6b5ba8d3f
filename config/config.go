package config

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Environment string          `json:"environment"`
	Database    DatabaseConfig  `json:"database"`
	Server      ServerConfig    `json:"server"`
	ANAF        ANAFConfig      `json:"anaf"`
	Security    SecurityConfig  `json:"security"`
	RateLimit   RateLimitConfig `json:"rate_limit"`
	Retry       RetryConfig     `json:"retry"`
}

type DatabaseConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	User         string        `json:"user"`
	Password     string        `json:"password"`
	DBName       string        `json:"dbname"`
	SSLMode      string        `json:"sslmode"`
	MaxOpenConns int           `json:"max_open_conns"`
	MaxIdleConns int           `json:"max_idle_conns"`
	MaxLifetime  time.Duration `json:"max_lifetime"`
}

type ServerConfig struct {
	Port           string        `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	MaxHeaderBytes int           `json:"max_header_bytes"`
}

// ANAFConfig selects the e-Factura environment and carries the registered
// OAuth client. Base URLs are derived from Environment unless overridden.
type ANAFConfig struct {
	ClientID       string        `json:"client_id"`
	ClientSecret   string        `json:"client_secret"`
	RedirectURI    string        `json:"redirect_uri"`
	Environment    string        `json:"environment"`
	AuthorizeURL   string        `json:"authorize_url"`
	TokenURL       string        `json:"token_url"`
	APIBaseURL     string        `json:"api_base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

type SecurityConfig struct {
	JWTSecret     string        `json:"jwt_secret"`
	JWTExpiration time.Duration `json:"jwt_expiration"`
	// EncryptionKey is hex or base64, decoding to exactly 32 bytes. It is
	// provisioned externally; production startup fails without it.
	EncryptionKey string `json:"encryption_key"`
}

type RateLimitConfig struct {
	Window time.Duration `json:"window"`
	Quota  int           `json:"quota"`
	// API-side limits enforced by middleware, not the upstream gate.
	APIRequestsPerSecond float64 `json:"api_requests_per_second"`
	APIBurst             int     `json:"api_burst"`
}

type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
}

const (
	sandboxAuthorizeURL = "https://logincert.anaf.ro/anaf-oauth2/v1/authorize"
	sandboxTokenURL     = "https://logincert.anaf.ro/anaf-oauth2/v1/token"
	sandboxAPIBaseURL   = "https://api.anaf.ro/test/FCTEL/rest"

	productionAuthorizeURL = "https://logincert.anaf.ro/anaf-oauth2/v1/authorize"
	productionTokenURL     = "https://logincert.anaf.ro/anaf-oauth2/v1/token"
	productionAPIBaseURL   = "https://api.anaf.ro/prod/FCTEL/rest"
)

func LoadConfig() (*Config, error) {
	config := &Config{}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	config.Environment = env

	configDir, err := filepath.Abs("config")
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.json")

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}

		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	config.loadFromEnv()

	config.setDefaults()

	return config, nil
}

func (c *Config) loadFromEnv() {
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Database.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		c.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		c.Database.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		c.Database.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		c.Database.SSLMode = sslmode
	}

	if clientID := os.Getenv("ANAF_CLIENT_ID"); clientID != "" {
		c.ANAF.ClientID = clientID
	}
	if clientSecret := os.Getenv("ANAF_CLIENT_SECRET"); clientSecret != "" {
		c.ANAF.ClientSecret = clientSecret
	}
	if redirectURI := os.Getenv("ANAF_REDIRECT_URI"); redirectURI != "" {
		c.ANAF.RedirectURI = redirectURI
	}
	if anafEnv := os.Getenv("ANAF_ENVIRONMENT"); anafEnv != "" {
		c.ANAF.Environment = anafEnv
	}

	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		c.Server.Port = serverPort
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.Security.JWTSecret = jwtSecret
	}
	if encryptionKey := os.Getenv("ENCRYPTION_KEY"); encryptionKey != "" {
		c.Security.EncryptionKey = encryptionKey
	}
}

func (c *Config) setDefaults() {
	if c.ANAF.Environment == "" {
		if c.Environment == "production" {
			c.ANAF.Environment = "production"
		} else {
			c.ANAF.Environment = "sandbox"
		}
	}

	switch c.ANAF.Environment {
	case "production":
		if c.ANAF.AuthorizeURL == "" {
			c.ANAF.AuthorizeURL = productionAuthorizeURL
		}
		if c.ANAF.TokenURL == "" {
			c.ANAF.TokenURL = productionTokenURL
		}
		if c.ANAF.APIBaseURL == "" {
			c.ANAF.APIBaseURL = productionAPIBaseURL
		}
	default:
		if c.ANAF.AuthorizeURL == "" {
			c.ANAF.AuthorizeURL = sandboxAuthorizeURL
		}
		if c.ANAF.TokenURL == "" {
			c.ANAF.TokenURL = sandboxTokenURL
		}
		if c.ANAF.APIBaseURL == "" {
			c.ANAF.APIBaseURL = sandboxAPIBaseURL
		}
	}

	if c.ANAF.RequestTimeout == 0 {
		c.ANAF.RequestTimeout = 30 * time.Second
	}

	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20
	}

	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.MaxLifetime == 0 {
		c.Database.MaxLifetime = time.Hour
	}

	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 60 * time.Second
	}
	if c.RateLimit.Quota == 0 {
		c.RateLimit.Quota = 1000
	}
	if c.RateLimit.APIRequestsPerSecond == 0 {
		c.RateLimit.APIRequestsPerSecond = 100
	}
	if c.RateLimit.APIBurst == 0 {
		c.RateLimit.APIBurst = 200
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 1 * time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}

	if c.Security.JWTExpiration == 0 {
		c.Security.JWTExpiration = 24 * time.Hour
	}
}

// DecodedEncryptionKey accepts a hex or base64 encoded key and requires the
// decoded value to be exactly 32 bytes.
func (c *SecurityConfig) DecodedEncryptionKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, fmt.Errorf("encryption key is not set")
	}

	if key, err := hex.DecodeString(c.EncryptionKey); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(c.EncryptionKey); err == nil && len(key) == 32 {
		return key, nil
	}

	return nil, fmt.Errorf("encryption key must decode to 32 bytes (hex or base64)")
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
