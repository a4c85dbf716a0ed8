package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port     string
	Debug    bool
	LogLevel string

	DBDriver string
	DBDSN    string

	JWTSecret string
	JWTTTL    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitWindow time.Duration
	RateLimitMax    int

	// Empty RabbitURL disables usage-event publishing.
	RabbitURL   string
	RabbitQueue string

	// LLM vendor
	AIProvider         string
	AnthropicBaseURL   string
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int
	UpstreamTimeout    time.Duration

	// Pricing: vendor cost per million tokens, marked up by the multiplier.
	PriceInPerMillion  decimal.Decimal
	PriceOutPerMillion decimal.Decimal
	PriceMultiplier    decimal.Decimal

	WelcomeBonus decimal.Decimal

	ChatContextWindowSize int

	// Origin-domain mapping for extension sessions.
	SellerConsoleHost string
	PublicSiteHost    string

	// Telegram Mini App auth; empty disables signature verification.
	BotToken string
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "mysql"
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "app:apppass@tcp(127.0.0.1:3306)/ozon_assist?charset=utf8mb4&parseTime=true&loc=Local"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	jwtTTL := 7 * 24 * time.Hour
	if v := os.Getenv("JWT_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			jwtTTL = time.Duration(n) * time.Hour
		}
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	rateWindow := time.Minute
	if v := os.Getenv("RATE_LIMIT_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateWindow = time.Duration(n) * time.Millisecond
		}
	}
	rateMax := 30
	if v := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateMax = n
		}
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "usage_events"
	}

	aiProvider := os.Getenv("AI_PROVIDER")
	if aiProvider == "" {
		aiProvider = "anthropic"
	}
	anthropicBaseURL := os.Getenv("ANTHROPIC_BASE_URL")
	if anthropicBaseURL == "" {
		anthropicBaseURL = "https://api.anthropic.com"
	}
	anthropicModel := os.Getenv("ANTHROPIC_MODEL")
	if anthropicModel == "" {
		anthropicModel = "claude-sonnet-4-20250514"
	}
	maxTokens := 2048
	if v := os.Getenv("ANTHROPIC_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxTokens = n
		}
	}
	upstreamTimeout := 90 * time.Second
	if v := os.Getenv("UPSTREAM_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			upstreamTimeout = time.Duration(n) * time.Second
		}
	}

	windowSize := 20
	if v := os.Getenv("CHAT_CONTEXT_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			windowSize = n
		}
	}

	sellerHost := os.Getenv("SELLER_CONSOLE_HOST")
	if sellerHost == "" {
		sellerHost = "seller.ozon.ru"
	}
	publicHost := os.Getenv("PUBLIC_SITE_HOST")
	if publicHost == "" {
		publicHost = "ozon.ru"
	}

	return Config{
		Port:     port,
		Debug:    os.Getenv("APP_ENV") == "development",
		LogLevel: os.Getenv("LOG_LEVEL"),

		DBDriver: driver,
		DBDSN:    dsn,

		JWTSecret: secret,
		JWTTTL:    jwtTTL,

		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		RateLimitWindow: rateWindow,
		RateLimitMax:    rateMax,

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: rabbitQueue,

		AIProvider:         aiProvider,
		AnthropicBaseURL:   anthropicBaseURL,
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:     anthropicModel,
		AnthropicMaxTokens: maxTokens,
		UpstreamTimeout:    upstreamTimeout,

		PriceInPerMillion:  decimalEnv("PRICE_IN_PER_MILLION", "15"),
		PriceOutPerMillion: decimalEnv("PRICE_OUT_PER_MILLION", "75"),
		PriceMultiplier:    decimalEnv("PRICE_MULTIPLIER", "3"),

		WelcomeBonus: decimalEnv("WELCOME_BONUS", "1"),

		ChatContextWindowSize: windowSize,

		SellerConsoleHost: sellerHost,
		PublicSiteHost:    publicHost,

		BotToken: os.Getenv("BOT_TOKEN"),
	}
}

func decimalEnv(name, fallback string) decimal.Decimal {
	if v := os.Getenv(name); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && !d.IsNegative() {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
