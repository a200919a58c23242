package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/codec"
	"github.com/bryanchriswhite/framerelay/internal/logger"
	"github.com/bryanchriswhite/framerelay/internal/transform"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrConfig is returned for missing, unreadable or invalid configuration
var ErrConfig = errors.New("configuration error")

const (
	DefaultReceiverHost  = "0.0.0.0"
	DefaultProducerHost  = "127.0.0.1"
	DefaultPort          = 9999
	DefaultDisplayPort   = 8080
	DefaultFPS           = 30
	DefaultSource        = "ffmpeg"
	DefaultDevice        = "/dev/video0"
	DefaultInputFormat   = "v4l2"
	DefaultCaptureWidth  = 640
	DefaultCaptureHeight = 480
	DefaultLogLevel      = "info"
)

// ReceiverConfig is everything the receiver reads at startup
type ReceiverConfig struct {
	Transform      transform.Params `json:"transform" yaml:"transform"`
	Host           string           `json:"host" yaml:"host"`
	Port           int              `json:"port" yaml:"port"`
	MaxMessageSize uint32           `json:"max_message_size" yaml:"max_message_size"`
	Interpolation  string           `json:"interpolation" yaml:"interpolation"`
	DisplayPort    int              `json:"display_port" yaml:"display_port"`
	Window         bool             `json:"window" yaml:"window"`
	LogLevel       string           `json:"log_level" yaml:"log_level"`

	// Path is the file the config was read from
	Path string `json:"-" yaml:"-"`
}

// Addr returns the listen address
func (c *ReceiverConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProducerConfig is everything the producer reads at startup
type ProducerConfig struct {
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	FPS            int           `json:"fps" yaml:"fps"`
	Source         string        `json:"source" yaml:"source"`
	Device         string        `json:"device" yaml:"device"`
	InputFormat    string        `json:"input_format" yaml:"input_format"`
	CaptureWidth   int           `json:"capture_width" yaml:"capture_width"`
	CaptureHeight  int           `json:"capture_height" yaml:"capture_height"`
	MaxMessageSize uint32        `json:"max_message_size" yaml:"max_message_size"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`
	LogLevel       string        `json:"log_level" yaml:"log_level"`
}

// Addr returns the receiver address to dial
func (c *ProducerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Interval returns the pacing between frames
func (c *ProducerConfig) Interval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

// SetReceiverDefaults registers receiver defaults on v
func SetReceiverDefaults(v *viper.Viper) {
	d := transform.DefaultParams()
	v.SetDefault("alpha", d.Alpha)
	v.SetDefault("ox", d.OX)
	v.SetDefault("oy", d.OY)
	v.SetDefault("width", d.Width)
	v.SetDefault("height", d.Height)
	v.SetDefault("host", DefaultReceiverHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("max_message_size", codec.DefaultMaxMessageSize)
	v.SetDefault("interpolation", transform.DefaultInterpolation)
	v.SetDefault("display_port", DefaultDisplayPort)
	v.SetDefault("window", false)
	v.SetDefault("log_level", DefaultLogLevel)
}

// SetProducerDefaults registers producer defaults on v
func SetProducerDefaults(v *viper.Viper) {
	v.SetDefault("host", DefaultProducerHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("fps", DefaultFPS)
	v.SetDefault("source", DefaultSource)
	v.SetDefault("device", DefaultDevice)
	v.SetDefault("input_format", DefaultInputFormat)
	v.SetDefault("capture_width", DefaultCaptureWidth)
	v.SetDefault("capture_height", DefaultCaptureHeight)
	v.SetDefault("max_message_size", codec.DefaultMaxMessageSize)
	v.SetDefault("write_timeout", "0s")
	v.SetDefault("log_level", DefaultLogLevel)
}

// LoadReceiver reads the receiver config file at path into v and
// validates it. Flags already bound to v take precedence over the file.
//
// Transform keys outside their documented range fall back to the default
// with a warning so that partial configs still run; anything unreadable or
// non-numeric fails with ErrConfig.
func LoadReceiver(v *viper.Viper, path string) (*ReceiverConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: a config file is required", ErrConfig)
	}
	SetReceiverDefaults(v)
	if err := readFile(v, path); err != nil {
		return nil, err
	}

	d := transform.DefaultParams()
	cfg := &ReceiverConfig{Path: path}

	var err error
	if cfg.Transform.Alpha, err = floatKey(v, "alpha"); err != nil {
		return nil, err
	}
	if cfg.Transform.OX, err = rangedKey(v, "ox", d.OX, true); err != nil {
		return nil, err
	}
	if cfg.Transform.OY, err = rangedKey(v, "oy", d.OY, true); err != nil {
		return nil, err
	}
	if cfg.Transform.Width, err = rangedKey(v, "width", d.Width, false); err != nil {
		return nil, err
	}
	if cfg.Transform.Height, err = rangedKey(v, "height", d.Height, false); err != nil {
		return nil, err
	}

	cfg.Host = v.GetString("host")
	if cfg.Port, err = portKey(v, "port", false); err != nil {
		return nil, err
	}
	if cfg.DisplayPort, err = portKey(v, "display_port", true); err != nil {
		return nil, err
	}
	if cfg.MaxMessageSize, err = sizeKey(v, "max_message_size"); err != nil {
		return nil, err
	}
	if cfg.Window, err = cast.ToBoolE(v.Get("window")); err != nil {
		return nil, fmt.Errorf("%w: window must be a boolean, got %v", ErrConfig, v.Get("window"))
	}

	cfg.Interpolation = strings.ToLower(v.GetString("interpolation"))
	if _, err := transform.NewEngine(cfg.Interpolation); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.LogLevel = v.GetString("log_level")

	logger.WithComponent("config").Info().
		Str("path", path).
		Float64("alpha", cfg.Transform.Alpha).
		Float64("ox", cfg.Transform.OX).
		Float64("oy", cfg.Transform.OY).
		Float64("width", cfg.Transform.Width).
		Float64("height", cfg.Transform.Height).
		Msg("Receiver config loaded")

	return cfg, nil
}

// LoadProducer validates producer settings from v, reading path first
// when one is given
func LoadProducer(v *viper.Viper, path string) (*ProducerConfig, error) {
	SetProducerDefaults(v)
	if path != "" {
		if err := readFile(v, path); err != nil {
			return nil, err
		}
	}

	cfg := &ProducerConfig{
		Host:        v.GetString("host"),
		Source:      strings.ToLower(v.GetString("source")),
		Device:      v.GetString("device"),
		InputFormat: v.GetString("input_format"),
		LogLevel:    v.GetString("log_level"),
	}

	var err error
	if cfg.Port, err = portKey(v, "port", false); err != nil {
		return nil, err
	}
	if cfg.FPS, err = positiveIntKey(v, "fps"); err != nil {
		return nil, err
	}
	if cfg.CaptureWidth, err = positiveIntKey(v, "capture_width"); err != nil {
		return nil, err
	}
	if cfg.CaptureHeight, err = positiveIntKey(v, "capture_height"); err != nil {
		return nil, err
	}
	if cfg.MaxMessageSize, err = sizeKey(v, "max_message_size"); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = cast.ToDurationE(v.Get("write_timeout")); err != nil || cfg.WriteTimeout < 0 {
		return nil, fmt.Errorf("%w: write_timeout must be a non-negative duration, got %v", ErrConfig, v.Get("write_timeout"))
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrConfig)
	}

	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if !strings.Contains(path, ".") {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: failed to read %s: %v", ErrConfig, path, err)
	}
	return nil
}

func floatKey(v *viper.Viper, key string) (float64, error) {
	f, err := cast.ToFloat64E(v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %v", ErrConfig, key, v.Get(key))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrConfig, key)
	}
	return f, nil
}

// rangedKey reads a normalized value. Centers accept [0,1]; sizes accept
// (0,1]. Out of range values are replaced by def.
func rangedKey(v *viper.Viper, key string, def float64, zeroOK bool) (float64, error) {
	f, err := floatKey(v, key)
	if err != nil {
		return 0, err
	}
	if f > 1 || f < 0 || (f == 0 && !zeroOK) {
		logger.WithComponent("config").Warn().
			Str("key", key).
			Float64("value", f).
			Float64("default", def).
			Msg("Value out of range, using default")
		return def, nil
	}
	return f, nil
}

func portKey(v *viper.Viper, key string, zeroOK bool) (int, error) {
	p, err := cast.ToIntE(v.Get(key))
	if err != nil || p < 0 || p > 65535 || (p == 0 && !zeroOK) {
		return 0, fmt.Errorf("%w: %s must be a valid port, got %v", ErrConfig, key, v.Get(key))
	}
	return p, nil
}

func positiveIntKey(v *viper.Viper, key string) (int, error) {
	n, err := cast.ToIntE(v.Get(key))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %v", ErrConfig, key, v.Get(key))
	}
	return n, nil
}

func sizeKey(v *viper.Viper, key string) (uint32, error) {
	n, err := cast.ToUint32E(v.Get(key))
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %s must be a positive byte count, got %v", ErrConfig, key, v.Get(key))
	}
	return n, nil
}
