package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          int           `mapstructure:"PORT"`
	MongoURI      string        `mapstructure:"MONGO_URI"`
	MongoDatabase string        `mapstructure:"MONGO_DATABASE"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	TokenTTL      time.Duration `mapstructure:"TOKEN_TTL"`
	CookieSecure  bool          `mapstructure:"COOKIE_SECURE"`

	SenderEmail string `mapstructure:"SENDER_EMAIL"`
	SenderName  string `mapstructure:"SENDER_NAME"`

	MailerDriver string `mapstructure:"MAILER_DRIVER"` // "smtp" or "mailersend"

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	MailerSendAPIKey string `mapstructure:"MAILERSEND_API_KEY"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("PORT", 4000)
	viper.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	viper.SetDefault("MONGO_DATABASE", "auth_service")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "your-secret-key")
	viper.SetDefault("TOKEN_TTL", "168h") // 7 days
	viper.SetDefault("COOKIE_SECURE", false)
	viper.SetDefault("SENDER_EMAIL", "no-reply@localhost")
	viper.SetDefault("SENDER_NAME", "Auth Service")
	viper.SetDefault("MAILER_DRIVER", "smtp")
	viper.SetDefault("SMTP_HOST", "localhost")
	viper.SetDefault("SMTP_PORT", 587)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
