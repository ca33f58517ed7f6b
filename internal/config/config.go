package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingToken = errors.New("HA_TOKEN is missing")
	ErrNoDevices    = errors.New("no capture devices configured")
)

// Config holds settings for every binary in the repo. Values come from defaults, then the
// optional YAML file, then the environment.
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	HomeAssistant struct {
		URL     string        `yaml:"url" env:"HA_URL"`
		Token   string        `yaml:"token" env:"HA_TOKEN"`
		Timeout time.Duration `yaml:"timeout" env:"PUBLISH_TIMEOUT"`

		Entities struct {
			TopLabel    string `yaml:"top_label" env:"HA_ENTITY_TOP_LABEL"`
			TopScore    string `yaml:"top_score" env:"HA_ENTITY_TOP_SCORE"`
			PersonCount string `yaml:"person_count" env:"HA_ENTITY_PERSON_COUNT"`
			TotalMs     string `yaml:"total_ms" env:"HA_ENTITY_TOTAL_MS"`
			VoiceA      string `yaml:"voice_a" env:"HA_ENTITY_A"`
			VoiceB      string `yaml:"voice_b" env:"HA_ENTITY_B"`
		} `yaml:"entities"`
	} `yaml:"home_assistant"`

	Vision struct {
		URL        string        `yaml:"url" env:"VISION_URL"`
		Timeout    time.Duration `yaml:"timeout" env:"INFER_TIMEOUT"`
		LabelsPath string        `yaml:"labels_path" env:"LABELS_PATH"`
		MinScore   float64       `yaml:"min_score" env:"MIN_SCORE"`
		IntervalS  float64       `yaml:"interval_s" env:"INTERVAL_S"`
	} `yaml:"vision"`

	Capture struct {
		Devices     []string      `yaml:"devices" env:"VIDEO_DEVS" envSeparator:","`
		Device      string        `yaml:"device" env:"VIDEO_DEV"`
		Width       int           `yaml:"width" env:"SNAP_W"`
		Height      int           `yaml:"height" env:"SNAP_H"`
		FPS         int           `yaml:"fps" env:"SNAP_FPS"`
		InputFormat string        `yaml:"input_format" env:"SNAP_INPUT_FORMAT"`
		Timeout     time.Duration `yaml:"timeout" env:"CAPTURE_TIMEOUT"`
		FFmpegPath  string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	} `yaml:"capture"`

	Audio struct {
		Device        string        `yaml:"device" env:"ALSA_DEVICE"`
		SampleRate    int           `yaml:"sample_rate" env:"AUDIO_SAMPLE_RATE"`
		Channels      int           `yaml:"channels" env:"AUDIO_CHANNELS"`
		ChunkSeconds  float64       `yaml:"chunk_seconds" env:"AUDIO_CHUNK_S"`
		Timeout       time.Duration `yaml:"timeout" env:"AUDIO_TIMEOUT"`
		DBFSFloor     float64       `yaml:"dbfs_floor" env:"AUDIO_DBFS_FLOOR"`
		DBFSCeil      float64       `yaml:"dbfs_ceil" env:"AUDIO_DBFS_CEIL"`
		EMAAlpha      float64       `yaml:"ema_alpha" env:"AUDIO_EMA_ALPHA"`
		BaselineAlpha float64       `yaml:"baseline_alpha" env:"AUDIO_BASELINE_ALPHA"`
		PrintEvery    int           `yaml:"print_every" env:"AUDIO_PRINT_EVERY"`
	} `yaml:"audio"`

	Dashboard struct {
		Addr   string `yaml:"addr" env:"DASHBOARD_ADDR"`
		SetURL string `yaml:"set_url" env:"DASHBOARD_SET_URL"`
	} `yaml:"dashboard"`

	Kafka struct {
		Brokers       []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID       string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		SnapshotTopic string   `yaml:"snapshot_topic" env:"SNAPSHOT_TOPIC"`
	} `yaml:"kafka"`

	MQTT struct {
		Broker      string `yaml:"broker" env:"MQTT_BROKER"`
		ClientID    string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
		TopicPrefix string `yaml:"topic_prefix" env:"MQTT_TOPIC_PREFIX"`
	} `yaml:"mqtt"`

	Minio struct {
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
		Secure    bool   `yaml:"secure" env:"MINIO_SECURE"`
	} `yaml:"minio"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}

	cfg.HomeAssistant.URL = "http://127.0.0.1:8123"
	cfg.HomeAssistant.Timeout = 10 * time.Second
	cfg.HomeAssistant.Entities.TopLabel = "sensor.vision_top_label"
	cfg.HomeAssistant.Entities.TopScore = "sensor.vision_top_score"
	cfg.HomeAssistant.Entities.PersonCount = "sensor.vision_person_count"
	cfg.HomeAssistant.Entities.TotalMs = "sensor.vision_total_ms"
	cfg.HomeAssistant.Entities.VoiceA = "sensor.voice_a"
	cfg.HomeAssistant.Entities.VoiceB = "sensor.voice_b"

	cfg.Vision.URL = "http://127.0.0.1:5052"
	cfg.Vision.Timeout = 10 * time.Second
	cfg.Vision.MinScore = 0.40
	cfg.Vision.IntervalS = 2.0

	cfg.Capture.Width = 640
	cfg.Capture.Height = 480
	cfg.Capture.FPS = 10
	cfg.Capture.Timeout = 15 * time.Second
	cfg.Capture.FFmpegPath = "ffmpeg"

	cfg.Audio.Device = "plughw:0,0"
	cfg.Audio.SampleRate = 48000
	cfg.Audio.Channels = 2
	cfg.Audio.ChunkSeconds = 1.0
	cfg.Audio.Timeout = 2 * time.Second
	cfg.Audio.DBFSFloor = -55.0
	cfg.Audio.DBFSCeil = -15.0
	cfg.Audio.EMAAlpha = 0.25
	cfg.Audio.BaselineAlpha = 0.02
	cfg.Audio.PrintEvery = 1

	cfg.Dashboard.Addr = ":8000"

	cfg.Kafka.GroupID = "relai-dashboard"
	cfg.Kafka.SnapshotTopic = "vision-snapshots"

	cfg.MQTT.ClientID = "relai-vision"
	cfg.MQTT.TopicPrefix = "relai"

	cfg.Minio.Bucket = "vision-frames"

	return cfg
}

// LoadConfig reads an optional .env file, an optional YAML file and then the environment,
// with the environment taking priority.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", filename, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	devices := lo.Map(c.Capture.Devices, func(d string, _ int) string {
		return strings.TrimSpace(d)
	})
	c.Capture.Devices = lo.Compact(devices)
	if len(c.Capture.Devices) == 0 {
		dev := strings.TrimSpace(c.Capture.Device)
		if dev == "" {
			dev = "/dev/video0"
		}
		c.Capture.Devices = []string{dev}
	}

	c.Capture.InputFormat = strings.TrimSpace(c.Capture.InputFormat)
	c.Kafka.Brokers = lo.Compact(lo.Map(c.Kafka.Brokers, func(b string, _ int) string {
		return strings.TrimSpace(b)
	}))
}

// Interval is the target vision cycle period
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Vision.IntervalS * float64(time.Second))
}

// ValidateVision checks the settings the vision loop cannot start without
func (c *Config) ValidateVision() error {
	if c.HomeAssistant.Token == "" {
		return ErrMissingToken
	}
	if len(c.Capture.Devices) == 0 {
		return ErrNoDevices
	}
	if c.Vision.IntervalS < 0 {
		return fmt.Errorf("INTERVAL_S must not be negative, got %v", c.Vision.IntervalS)
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 || c.Capture.FPS <= 0 {
		return fmt.Errorf("invalid capture geometry %dx%d@%d", c.Capture.Width, c.Capture.Height, c.Capture.FPS)
	}
	return nil
}

// ValidateAudio checks the audio loop settings. A token is only needed when publishing to
// Home Assistant rather than the dashboard.
func (c *Config) ValidateAudio() error {
	if c.Dashboard.SetURL == "" && c.HomeAssistant.Token == "" {
		return ErrMissingToken
	}
	if c.Audio.ChunkSeconds <= 0 {
		return fmt.Errorf("AUDIO_CHUNK_S must be positive, got %v", c.Audio.ChunkSeconds)
	}
	return nil
}
