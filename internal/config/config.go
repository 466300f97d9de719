package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
}

type TripsConfig struct {
	ProximityRadiusKm      float64
	ExpiryWarningDays      int
	StrictMissingDocuments bool
	StoreTimeout           time.Duration
	LaneCodePrefix         string
	TripCodePrefix         string
}

type ConsentConfig struct {
	TTL time.Duration
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PositionTTL time.Duration
}

type MQTTConfig struct {
	BrokerURL     string
	ClientID      string
	RequestTopic  string
	DecisionTopic string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Trips       TripsConfig
	Consent     ConsentConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Trips: TripsConfig{
			ProximityRadiusKm:      v.GetFloat64("TRIPS_PROXIMITY_RADIUS_KM"),
			ExpiryWarningDays:      v.GetInt("TRIPS_EXPIRY_WARNING_DAYS"),
			StrictMissingDocuments: v.GetBool("TRIPS_STRICT_MISSING_DOCUMENTS"),
			StoreTimeout:           v.GetDuration("TRIPS_STORE_TIMEOUT"),
			LaneCodePrefix:         v.GetString("TRIPS_LANE_CODE_PREFIX"),
			TripCodePrefix:         v.GetString("TRIPS_TRIP_CODE_PREFIX"),
		},
		Consent: ConsentConfig{
			TTL: v.GetDuration("CONSENT_TTL"),
		},
		Redis: RedisConfig{
			Addr:        v.GetString("REDIS_ADDR"),
			Password:    v.GetString("REDIS_PASSWORD"),
			DB:          v.GetInt("REDIS_DB"),
			PositionTTL: v.GetDuration("REDIS_POSITION_TTL"),
		},
		MQTT: MQTTConfig{
			BrokerURL:     v.GetString("MQTT_BROKER_URL"),
			ClientID:      v.GetString("MQTT_CLIENT_ID"),
			RequestTopic:  v.GetString("MQTT_REQUEST_TOPIC"),
			DecisionTopic: v.GetString("MQTT_DECISION_TOPIC"),
		},
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7091
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
	if cfg.DB.MaxOpenConns == 0 {
		cfg.DB.MaxOpenConns = 20
	}
	if cfg.DB.MaxIdleConns == 0 {
		cfg.DB.MaxIdleConns = 10
	}
	if cfg.DB.ConnMaxLifetime == "" {
		cfg.DB.ConnMaxLifetime = "30m"
	}
	if cfg.Trips.ProximityRadiusKm <= 0 {
		cfg.Trips.ProximityRadiusKm = 50
	}
	if cfg.Trips.ExpiryWarningDays <= 0 {
		cfg.Trips.ExpiryWarningDays = 30
	}
	if cfg.Trips.StoreTimeout <= 0 {
		cfg.Trips.StoreTimeout = 5 * time.Second
	}
	if cfg.Trips.LaneCodePrefix == "" {
		cfg.Trips.LaneCodePrefix = "LN"
	}
	if cfg.Trips.TripCodePrefix == "" {
		cfg.Trips.TripCodePrefix = "TR"
	}
	if cfg.Consent.TTL <= 0 {
		cfg.Consent.TTL = 72 * time.Hour
	}
	if cfg.Redis.PositionTTL <= 0 {
		cfg.Redis.PositionTTL = 30 * time.Second
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "tms-trips"
	}
	if cfg.MQTT.RequestTopic == "" {
		cfg.MQTT.RequestTopic = "consent/requests"
	}
	if cfg.MQTT.DecisionTopic == "" {
		cfg.MQTT.DecisionTopic = "consent/decisions/+"
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if _, err := time.ParseDuration(cfg.DB.ConnMaxLifetime); err != nil {
		return fmt.Errorf("DB_CONN_MAX_LIFETIME: %w", err)
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
