// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// DefaultPath is where the commands look for the configuration file.
const DefaultPath = "./posture_config.txt"

// EnvPrefix prefixes environment overrides, e.g. POSTURE_GOOD_ANGLE=172.
const EnvPrefix = "POSTURE"

// Config holds all application configuration values.
type Config struct {
	// Camera / pose estimation (forwarded to the landmark producer)
	CameraWidth         int     `mapstructure:"camera_width"`
	CameraHeight        int     `mapstructure:"camera_height"`
	ModelComplexity     int     `mapstructure:"model_complexity"`
	DetectionConfidence float64 `mapstructure:"detection_confidence"`
	MinFPS              float64 `mapstructure:"min_fps"`

	// Pose source: "mock", "mqtt" or "replay"
	Source       string        `mapstructure:"source"`
	ReplayPath   string        `mapstructure:"replay_path"`
	FrameTimeout time.Duration `mapstructure:"frame_timeout"`
	MockFPS      int           `mapstructure:"mock_fps"`

	// Classification
	LandmarkMinVisibility float64 `mapstructure:"landmark_min_visibility"`
	GoodAngle             float64 `mapstructure:"good_angle"`
	FairAngle             float64 `mapstructure:"fair_angle"`
	BaselineFairMargin    float64 `mapstructure:"baseline_fair_margin"`

	// Alerts and break reminders
	BadDuration   time.Duration `mapstructure:"bad_duration"`
	AlertCooldown time.Duration `mapstructure:"alert_cooldown"`
	AlertTitle    string        `mapstructure:"alert_title"`
	AlertTimeout  time.Duration `mapstructure:"alert_timeout"`
	BreakInterval time.Duration `mapstructure:"break_interval"`
	BreakTitle    string        `mapstructure:"break_title"`
	BreakTimeout  time.Duration `mapstructure:"break_timeout"`
	Notifiers     []string      `mapstructure:"notifiers"` // any of "log", "desktop", "mqtt"
	DesktopBeep   bool          `mapstructure:"desktop_beep"`

	// Session log
	RecordEvery time.Duration `mapstructure:"record_every"`
	SessionsDir string        `mapstructure:"sessions_dir"`

	// Calibration
	CalibrationDuration   time.Duration `mapstructure:"calibration_duration"`
	CalibrationMinSamples int           `mapstructure:"calibration_min_samples"`
	CalibrationTolerance  float64       `mapstructure:"calibration_tolerance"`
	BaselinePath          string        `mapstructure:"baseline_path"`

	// MQTT
	MQTTBroker           string `mapstructure:"mqtt_broker"`
	MQTTClientIDMonitor  string `mapstructure:"mqtt_client_id_monitor"`
	MQTTClientIDProducer string `mapstructure:"mqtt_client_id_producer"`
	MQTTClientIDConsole  string `mapstructure:"mqtt_client_id_console"`
	MQTTClientIDWeb      string `mapstructure:"mqtt_client_id_web"`

	// Topics
	TopicLandmarks string `mapstructure:"topic_landmarks"`
	TopicCapture   string `mapstructure:"topic_capture"`
	TopicStatus    string `mapstructure:"topic_status"`
	TopicAlerts    string `mapstructure:"topic_alerts"`
	// PublishStatus publishes a live status snapshot per tick to TopicStatus.
	PublishStatus bool `mapstructure:"publish_status"`

	// Session history: "none", "bolt" or "redis"
	StorageType      string `mapstructure:"storage_type"`
	StoragePath      string `mapstructure:"storage_path"`
	RedisAddr        string `mapstructure:"redis_addr"`
	RedisPassword    string `mapstructure:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db"`
	HistoryCacheSize int    `mapstructure:"history_cache_size"`

	// Web / metrics
	WebServerPort int    `mapstructure:"web_server_port"`
	MetricsAddr   string `mapstructure:"metrics_addr"` // empty disables the metrics server

	// Display: "console", "oled" or "none"
	Display               string        `mapstructure:"display"`
	DisplayI2CAddr        uint16        `mapstructure:"display_i2c_addr"`
	DisplayUpdateInterval time.Duration `mapstructure:"display_update_interval"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "text" or "json"
}

// Load reads the KEY=VALUE file at configPath, applies POSTURE_* environment
// overrides and validates the result. A missing file means defaults plus
// environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("env")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Notifiers = splitList(cfg.Notifiers)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("camera_width", 640)
	v.SetDefault("camera_height", 480)
	v.SetDefault("model_complexity", 0)
	v.SetDefault("detection_confidence", 0.5)
	v.SetDefault("min_fps", 8.0)

	v.SetDefault("source", "mock")
	v.SetDefault("replay_path", "")
	v.SetDefault("frame_timeout", 5*time.Second)
	v.SetDefault("mock_fps", 15)

	v.SetDefault("landmark_min_visibility", 0.0)
	v.SetDefault("good_angle", 170.0)
	v.SetDefault("fair_angle", 160.0)
	v.SetDefault("baseline_fair_margin", 20.0)

	v.SetDefault("bad_duration", 180*time.Second)
	v.SetDefault("alert_cooldown", 300*time.Second)
	v.SetDefault("alert_title", "Posture Alert")
	v.SetDefault("alert_timeout", 5*time.Second)
	v.SetDefault("break_interval", 1800*time.Second)
	v.SetDefault("break_title", "Break Time!")
	v.SetDefault("break_timeout", 10*time.Second)
	v.SetDefault("notifiers", "log,desktop")
	v.SetDefault("desktop_beep", false)

	v.SetDefault("record_every", 5*time.Second)
	v.SetDefault("sessions_dir", "data/sessions")

	v.SetDefault("calibration_duration", 120*time.Second)
	v.SetDefault("calibration_min_samples", 50)
	v.SetDefault("calibration_tolerance", 10.0)
	v.SetDefault("baseline_path", "user_baseline.json")

	v.SetDefault("mqtt_broker", "tcp://localhost:1883")
	v.SetDefault("mqtt_client_id_monitor", "posture-monitor")
	v.SetDefault("mqtt_client_id_producer", "posture-producer")
	v.SetDefault("mqtt_client_id_console", "posture-console")
	v.SetDefault("mqtt_client_id_web", "posture-web")

	v.SetDefault("topic_landmarks", "posture/landmarks")
	v.SetDefault("topic_capture", "posture/capture")
	v.SetDefault("topic_status", "posture/status")
	v.SetDefault("topic_alerts", "posture/alerts")
	v.SetDefault("publish_status", true)

	v.SetDefault("storage_type", "none")
	v.SetDefault("storage_path", "data/history.bolt")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("history_cache_size", 64)

	v.SetDefault("web_server_port", 8080)
	v.SetDefault("metrics_addr", "")

	v.SetDefault("display", "console")
	v.SetDefault("display_i2c_addr", 0x3C)
	v.SetDefault("display_update_interval", 500*time.Millisecond)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// splitList normalizes list values given either as separate items or as a
// single comma-separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

func (c *Config) validate() error {
	if err := oneOf("SOURCE", c.Source, "mock", "mqtt", "replay"); err != nil {
		return err
	}
	if c.Source == "replay" && c.ReplayPath == "" {
		return fmt.Errorf("REPLAY_PATH is required when SOURCE=replay")
	}
	if c.Source == "mqtt" && c.FrameTimeout <= 0 {
		return fmt.Errorf("FRAME_TIMEOUT must be positive, got %s", c.FrameTimeout)
	}
	if c.MockFPS <= 0 {
		return fmt.Errorf("MOCK_FPS must be positive, got %d", c.MockFPS)
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return fmt.Errorf("CAMERA_WIDTH and CAMERA_HEIGHT must be positive, got %dx%d", c.CameraWidth, c.CameraHeight)
	}
	if c.ModelComplexity < 0 || c.ModelComplexity > 2 {
		return fmt.Errorf("MODEL_COMPLEXITY must be 0-2, got %d", c.ModelComplexity)
	}
	if c.DetectionConfidence < 0 || c.DetectionConfidence > 1 {
		return fmt.Errorf("DETECTION_CONFIDENCE must be 0-1, got %g", c.DetectionConfidence)
	}
	if c.LandmarkMinVisibility < 0 || c.LandmarkMinVisibility > 1 {
		return fmt.Errorf("LANDMARK_MIN_VISIBILITY must be 0-1, got %g", c.LandmarkMinVisibility)
	}
	if c.MinFPS < 0 {
		return fmt.Errorf("MIN_FPS must not be negative, got %g", c.MinFPS)
	}

	if c.GoodAngle <= 0 || c.GoodAngle > 180 {
		return fmt.Errorf("GOOD_ANGLE must be in (0, 180], got %g", c.GoodAngle)
	}
	if c.FairAngle <= 0 || c.FairAngle >= c.GoodAngle {
		return fmt.Errorf("FAIR_ANGLE must be in (0, GOOD_ANGLE), got %g", c.FairAngle)
	}
	if c.BaselineFairMargin <= 0 {
		return fmt.Errorf("BASELINE_FAIR_MARGIN must be positive, got %g", c.BaselineFairMargin)
	}

	if c.BadDuration <= 0 {
		return fmt.Errorf("BAD_DURATION must be positive, got %s", c.BadDuration)
	}
	if c.AlertCooldown < 0 {
		return fmt.Errorf("ALERT_COOLDOWN must not be negative, got %s", c.AlertCooldown)
	}
	if c.BreakInterval <= 0 {
		return fmt.Errorf("BREAK_INTERVAL must be positive, got %s", c.BreakInterval)
	}
	for _, n := range c.Notifiers {
		if err := oneOf("NOTIFIERS", n, "log", "desktop", "mqtt"); err != nil {
			return err
		}
	}

	if c.RecordEvery <= 0 {
		return fmt.Errorf("RECORD_EVERY must be positive, got %s", c.RecordEvery)
	}
	if c.SessionsDir == "" {
		return fmt.Errorf("SESSIONS_DIR is required")
	}

	if c.CalibrationDuration <= 0 {
		return fmt.Errorf("CALIBRATION_DURATION must be positive, got %s", c.CalibrationDuration)
	}
	if c.CalibrationMinSamples < 1 {
		return fmt.Errorf("CALIBRATION_MIN_SAMPLES must be at least 1, got %d", c.CalibrationMinSamples)
	}
	if c.CalibrationTolerance < 0 || c.CalibrationTolerance >= c.BaselineFairMargin {
		return fmt.Errorf("CALIBRATION_TOLERANCE must be in [0, BASELINE_FAIR_MARGIN), got %g", c.CalibrationTolerance)
	}
	if c.BaselinePath == "" {
		return fmt.Errorf("BASELINE_PATH is required")
	}

	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}

	if err := oneOf("STORAGE_TYPE", c.StorageType, "none", "bolt", "redis"); err != nil {
		return err
	}
	if c.StorageType == "bolt" && c.StoragePath == "" {
		return fmt.Errorf("STORAGE_PATH is required when STORAGE_TYPE=bolt")
	}
	if c.StorageType == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when STORAGE_TYPE=redis")
	}
	if c.HistoryCacheSize <= 0 {
		return fmt.Errorf("HISTORY_CACHE_SIZE must be positive, got %d", c.HistoryCacheSize)
	}

	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("invalid WEB_SERVER_PORT: %d", c.WebServerPort)
	}

	if err := oneOf("DISPLAY", c.Display, "console", "oled", "none"); err != nil {
		return err
	}
	if c.Display == "oled" && c.DisplayI2CAddr == 0 {
		return fmt.Errorf("DISPLAY_I2C_ADDR is required when DISPLAY=oled")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if err := oneOf("LOG_FORMAT", c.LogFormat, "text", "json"); err != nil {
		return err
	}

	return nil
}
