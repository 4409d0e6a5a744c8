package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env           string
	Port          string
	SessionSecret string
	DatabaseURL   string
	RedisURL      string

	// Field verification: maximum agent distance from the property's
	// registered coordinates for the GPS step to pass.
	VerificationRadiusM float64
	// OTP hardening: code lifetime and verify attempts per issued code.
	OTPTTL         time.Duration
	OTPMaxAttempts int

	// Offer expiry TTL applied at creation when the client sends none.
	OfferTTL time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	FrontendURLEndsWith string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL")
	if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}

	radius := viper.GetFloat64("VERIFICATION_RADIUS_M")
	if radius <= 0 {
		radius = 200
	}
	otpTTL := viper.GetDuration("OTP_TTL")
	if otpTTL <= 0 {
		otpTTL = 10 * time.Minute
	}
	otpAttempts := viper.GetInt("OTP_MAX_ATTEMPTS")
	if otpAttempts <= 0 {
		otpAttempts = 5
	}
	offerTTL := viper.GetDuration("OFFER_TTL")
	if offerTTL <= 0 {
		offerTTL = 72 * time.Hour
	}

	return &Config{
		Env:                 env,
		Port:                port,
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		VerificationRadiusM: radius,
		OTPTTL:              otpTTL,
		OTPMaxAttempts:      otpAttempts,
		OfferTTL:            offerTTL,
		StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
	}, nil
}
