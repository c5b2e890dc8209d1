package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nurpe/weighbridge-allocations/internal/engine"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Engine      engine.Config
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

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Engine: engine.Config{
			Route: parseList(v.GetString("ROUTE_SITES")),
			Thresholds: engine.Thresholds{
				VarianceWarnPct:              v.GetFloat64("VARIANCE_WARN_PCT"),
				VarianceCriticalPct:          v.GetFloat64("VARIANCE_CRITICAL_PCT"),
				StagingWarn:                  v.GetDuration("STAGING_WARN"),
				StagingEscalated:             v.GetDuration("STAGING_ESCALATED"),
				StagingCritical:              v.GetDuration("STAGING_CRITICAL"),
				StockpileWarnUtilisation:     v.GetFloat64("STOCKPILE_WARN_UTILISATION"),
				StockpileCriticalUtilisation: v.GetFloat64("STOCKPILE_CRITICAL_UTILISATION"),
				ComplianceMinRate:            v.GetFloat64("COMPLIANCE_MIN_RATE"),
				ComplianceWindow:             v.GetDuration("COMPLIANCE_WINDOW"),
				ShortfallWindow:              v.GetDuration("SHORTFALL_WINDOW"),
			},
			Rules: engine.Rules{
				Staging:               boolOrDefault(v, "RULE_STAGING", true),
				Variance:              boolOrDefault(v, "RULE_VARIANCE", true),
				UnallocatedVehicle:    boolOrDefault(v, "RULE_UNALLOCATED_VEHICLE", true),
				StockpileCapacity:     boolOrDefault(v, "RULE_STOCKPILE_CAPACITY", true),
				TruckShortfall:        boolOrDefault(v, "RULE_TRUCK_SHORTFALL", true),
				TransporterCompliance: boolOrDefault(v, "RULE_TRANSPORTER_COMPLIANCE", true),
			},
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
		cfg.HTTP.Port = 7090
	}
	if len(cfg.Engine.Route) == 0 {
		cfg.Engine.Route = []string{"mine", "stockpile"}
	}

	t := &cfg.Engine.Thresholds
	if t.VarianceWarnPct == 0 {
		t.VarianceWarnPct = 2.0
	}
	if t.VarianceCriticalPct == 0 {
		t.VarianceCriticalPct = 5.0
	}
	if t.StagingWarn == 0 {
		t.StagingWarn = 6 * time.Hour
	}
	if t.StagingEscalated == 0 {
		t.StagingEscalated = 12 * time.Hour
	}
	if t.StagingCritical == 0 {
		t.StagingCritical = 24 * time.Hour
	}
	if t.StockpileWarnUtilisation == 0 {
		t.StockpileWarnUtilisation = 0.85
	}
	if t.StockpileCriticalUtilisation == 0 {
		t.StockpileCriticalUtilisation = 0.95
	}
	if t.ComplianceMinRate == 0 {
		t.ComplianceMinRate = 0.80
	}
	if t.ComplianceWindow == 0 {
		t.ComplianceWindow = 30 * 24 * time.Hour
	}
	if t.ShortfallWindow == 0 {
		t.ShortfallWindow = 12 * time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return err
	}
	return nil
}

func boolOrDefault(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	return v.GetBool(key)
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
