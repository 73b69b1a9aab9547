package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	ClassifierURL      string        `mapstructure:"CLASSIFIER_URL"`
	ClassifierCacheTTL time.Duration `mapstructure:"CLASSIFIER_CACHE_TTL"`
	LowConfidence      float64       `mapstructure:"LOW_CONFIDENCE"`

	SMSGatewayURL string `mapstructure:"SMS_GATEWAY_URL"`
	SMSFrom       string `mapstructure:"SMS_FROM"`
	SMSAPIKey     string `mapstructure:"SMS_API_KEY"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	UtteranceTimeout   time.Duration `mapstructure:"UTTERANCE_TIMEOUT"`
	MaxReprompts       int           `mapstructure:"MAX_REPROMPTS"`
	ManagerLine        string        `mapstructure:"MANAGER_LINE"`
	BackupLine         string        `mapstructure:"BACKUP_LINE"`
	EscalationInterval time.Duration `mapstructure:"ESCALATION_INTERVAL"`
	BatchConcurrency   int           `mapstructure:"BATCH_CONCURRENCY"`
	SeedDemo           bool          `mapstructure:"SEED_DEMO"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("CLASSIFIER_URL", "")
	v.SetDefault("CLASSIFIER_CACHE_TTL", "5m")
	v.SetDefault("LOW_CONFIDENCE", 0.75)
	v.SetDefault("SMS_GATEWAY_URL", "")
	v.SetDefault("SMS_FROM", "")
	v.SetDefault("SMS_API_KEY", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "ticket-events")
	v.SetDefault("UTTERANCE_TIMEOUT", "10s")
	v.SetDefault("MAX_REPROMPTS", 2)
	v.SetDefault("MANAGER_LINE", "+1800MANAGER")
	v.SetDefault("BACKUP_LINE", "+1800BACKUP")
	v.SetDefault("ESCALATION_INTERVAL", "1m")
	v.SetDefault("BATCH_CONCURRENCY", 4)
	v.SetDefault("SEED_DEMO", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
