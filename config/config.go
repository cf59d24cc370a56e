package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/victorjacobs/hass-poller/homeassistant"
	"github.com/victorjacobs/hass-poller/sensor"
)

const (
	DefaultReadInterval   = 30
	DefaultRequestTimeout = 10
	DefaultTopicPrefix    = "hass-poller"
	DefaultBaudRate       = 115200

	// Polling faster than this puts needless load on Home Assistant.
	MinReadInterval = 5
)

type Configuration struct {
	Wifi          Wifi           `json:"wifi" yaml:"wifi"`
	HomeAssistant HomeAssistant  `json:"home_assistant" yaml:"home_assistant"`
	Sensors       []sensor.Entry `json:"sensors" yaml:"sensors"`
	Console       Console        `json:"console" yaml:"console"`
	Mqtt          *Mqtt          `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	HTTP          *HTTP          `json:"http,omitempty" yaml:"http,omitempty"`
}

// Wifi is handed to whatever brings the network up; it is not used here.
type Wifi struct {
	SSID     string `json:"ssid" yaml:"ssid"`
	Password string `json:"password" yaml:"password"`
}

type HomeAssistant struct {
	BaseURL            string `json:"base_url" yaml:"base_url"`
	AccessToken        string `json:"access_token" yaml:"access_token"`
	ReadInterval       int    `json:"read_interval" yaml:"read_interval"`     // seconds
	RequestTimeout     int    `json:"request_timeout" yaml:"request_timeout"` // seconds
	CAFile             string `json:"ca_file" yaml:"ca_file"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type Console struct {
	SerialPort string `json:"serial_port" yaml:"serial_port"`
	BaudRate   int    `json:"baud_rate" yaml:"baud_rate"`
}

type Mqtt struct {
	IpAddress   string `json:"ip_address" yaml:"ip_address"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
}

type HTTP struct {
	Port     int `json:"port" yaml:"port"`
	CacheTTL int `json:"cache_ttl" yaml:"cache_ttl"` // seconds
}

// LoadConfiguration reads a JSON or YAML file (by extension), applies
// environment overrides and defaults, and validates the result.
func LoadConfiguration(filename string) (*Configuration, error) {
	var file *os.File
	var err error
	if file, err = os.Open(filename); err != nil {
		return nil, err
	}

	defer file.Close()
	configuration := &Configuration{}

	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(configuration); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(configuration); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := configuration.applyEnv(); err != nil {
		return nil, err
	}
	configuration.ensureDefaults()

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	return configuration, nil
}

// applyEnv lets secrets stay out of the config file.
func (c *Configuration) applyEnv() error {
	c.Wifi.SSID = getEnv("WIFI_SSID", c.Wifi.SSID)
	c.Wifi.Password = getEnv("WIFI_PASSWORD", c.Wifi.Password)
	c.HomeAssistant.BaseURL = getEnv("HA_BASE_URL", c.HomeAssistant.BaseURL)
	c.HomeAssistant.AccessToken = getEnv("HA_ACCESS_TOKEN", c.HomeAssistant.AccessToken)

	if v, ok := os.LookupEnv("READ_INTERVAL"); ok {
		interval, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid READ_INTERVAL %q: %w", v, err)
		}
		c.HomeAssistant.ReadInterval = interval
	}

	return nil
}

func (c *Configuration) ensureDefaults() {
	if c.HomeAssistant.ReadInterval == 0 {
		c.HomeAssistant.ReadInterval = DefaultReadInterval
	}
	if c.HomeAssistant.RequestTimeout == 0 {
		c.HomeAssistant.RequestTimeout = DefaultRequestTimeout
	}
	if c.Console.BaudRate == 0 {
		c.Console.BaudRate = DefaultBaudRate
	}
	if c.Mqtt != nil && c.Mqtt.TopicPrefix == "" {
		c.Mqtt.TopicPrefix = DefaultTopicPrefix
	}
	if c.HTTP != nil && c.HTTP.CacheTTL == 0 {
		c.HTTP.CacheTTL = 3 * c.HomeAssistant.ReadInterval
	}
}

func (c *Configuration) Validate() error {
	if _, err := homeassistant.NormalizeBaseURL(c.HomeAssistant.BaseURL); err != nil {
		return err
	}
	if c.HomeAssistant.AccessToken == "" {
		return errors.New("home_assistant.access_token must be set")
	}
	if c.HomeAssistant.ReadInterval < MinReadInterval {
		return fmt.Errorf("home_assistant.read_interval must be at least %d seconds, got %d", MinReadInterval, c.HomeAssistant.ReadInterval)
	}
	if c.HomeAssistant.RequestTimeout <= 0 {
		return fmt.Errorf("home_assistant.request_timeout must be positive, got %d", c.HomeAssistant.RequestTimeout)
	}
	if c.Mqtt != nil && c.Mqtt.IpAddress == "" {
		return errors.New("mqtt.ip_address must be set when mqtt is configured")
	}
	if c.HTTP != nil && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry builds the sensor registry from the configured list.
func (c *Configuration) Registry() (*sensor.Registry, error) {
	return sensor.NewRegistry(c.Sensors)
}

func (c *Configuration) ReadInterval() time.Duration {
	return time.Duration(c.HomeAssistant.ReadInterval) * time.Second
}

func (c *Configuration) RequestTimeout() time.Duration {
	return time.Duration(c.HomeAssistant.RequestTimeout) * time.Second
}

func (h *HTTP) CacheTTLDuration() time.Duration {
	return time.Duration(h.CacheTTL) * time.Second
}

func (m *Mqtt) ClientOptions() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%v:1883", m.IpAddress)).
		SetClientID(m.TopicPrefix).
		SetUsername(m.Username).
		SetPassword(m.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			glog.Warningf("MQTT connection lost: %v", err)
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			glog.Infof("MQTT reconnecting")
		})
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
