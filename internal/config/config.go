package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Env string

const (
	EnvDevelopment Env = "development"
	EnvProduction  Env = "production"
	EnvTest        Env = "test"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// カート追加時の在庫の扱い
type CartStockPolicy string

const (
	// 在庫数で頭打ちにして、丸めたことを返す
	CartStockClamp CartStockPolicy = "clamp"
	// 追加時は見ない（注文確定時だけチェック）
	CartStockIgnore CartStockPolicy = "ignore"
)

// Configはアプリ全体の設定
type Config struct {
	Env      Env
	Port     string
	LogLevel LogLevel

	DatabaseURL      string // あれば POSTGRES_* より優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string
	DBMaxOpenConns   int

	JWTSecret string

	RedisAddr     string // 空ならプロセス内ロック
	RedisPassword string
	RedisDB       int

	KafkaBrokers     []string // 空ならイベントは流さない
	KafkaTopicOrders string

	JaegerEndpoint string // 空ならトレースは送らない

	BuyNowTTL          time.Duration
	CheckoutTimeout    time.Duration
	CheckoutMaxRetries int
	CheckoutLockTTL    time.Duration
	CartStockPolicy    CartStockPolicy
}

// Loadは環境変数（.env があれば先に読む）
func Load() (Config, error) {
	_ = godotenv.Load()

	env, err := parseEnv(getenv("GO_ENV", string(EnvDevelopment)))
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(getenv("LOG_LEVEL", string(LogLevelInfo)))
	if err != nil {
		return Config{}, err
	}
	policy, err := parseCartStockPolicy(getenv("CART_STOCK_POLICY", string(CartStockClamp)))
	if err != nil {
		return Config{}, err
	}

	pgPort, err := atoiDefault("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	maxConns, err := atoiDefault("DB_MAX_OPEN_CONNS", 20)
	if err != nil {
		return Config{}, err
	}
	redisDB, err := atoiDefault("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	retries, err := atoiDefault("CHECKOUT_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	buyNowTTL, err := durationDefault("BUY_NOW_TTL", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	checkoutTimeout, err := durationDefault("CHECKOUT_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	lockTTL, err := durationDefault("CHECKOUT_LOCK_TTL", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:      env,
		Port:     getenv("PORT", "8080"),
		LogLevel: level,

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       getenv("POSTGRES_DB", "app"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     pgPort,
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		DBMaxOpenConns:   maxConns,

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicOrders: getenv("KAFKA_TOPIC_ORDERS", "storefront.orders"),

		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),

		BuyNowTTL:          buyNowTTL,
		CheckoutTimeout:    checkoutTimeout,
		CheckoutMaxRetries: retries,
		CheckoutLockTTL:    lockTTL,
		CartStockPolicy:    policy,
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" && cfg.PostgresPassword == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or POSTGRES_PASSWORD is required")
	}
	if cfg.DBMaxOpenConns < 1 {
		return Config{}, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	if cfg.CheckoutMaxRetries < 0 {
		return Config{}, fmt.Errorf("CHECKOUT_MAX_RETRIES must not be negative")
	}
	if cfg.BuyNowTTL <= 0 || cfg.CheckoutTimeout <= 0 || cfg.CheckoutLockTTL <= 0 {
		return Config{}, fmt.Errorf("durations must be positive")
	}

	return cfg, nil
}

// DSN は gorm postgres 用の接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) ClampCartToStock() bool {
	return c.CartStockPolicy == CartStockClamp
}

func parseEnv(v string) (Env, error) {
	switch e := Env(strings.ToLower(v)); e {
	case EnvDevelopment, EnvProduction, EnvTest:
		return e, nil
	}
	return "", fmt.Errorf("GO_ENV must be one of development/production/test: %q", v)
}

func parseLogLevel(v string) (LogLevel, error) {
	switch l := LogLevel(strings.ToLower(v)); l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return l, nil
	}
	return "", fmt.Errorf("LOG_LEVEL must be one of debug/info/warn/error: %q", v)
}

func parseCartStockPolicy(v string) (CartStockPolicy, error) {
	switch p := CartStockPolicy(strings.ToLower(v)); p {
	case CartStockClamp, CartStockIgnore:
		return p, nil
	}
	return "", fmt.Errorf("CART_STOCK_POLICY must be clamp or ignore: %q", v)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
