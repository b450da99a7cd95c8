// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// Sensor sources.
const (
	SourceSimulated = "simulated"
	SourceMPU9250   = "mpu9250"
	SourceMQTT      = "mqtt"
	SourceSerial    = "serial"
)

// Store backends.
const (
	StoreFile      = "file"
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Config holds all application configuration values.
type Config struct {
	// Step detection
	StepThreshold     float64
	MinStepIntervalMS int
	MovementThreshold float64
	MovementDecayMS   int
	CalibrationSample int

	// Aggregation and metrics
	BatchFlushIntervalMS int // 0 = commit every step immediately
	CalorieCoefficient   float64
	MovingCalorieBonus   float64
	DailyGoal            int
	RolloverPollMS       int

	// Sensor source
	SensorSource     string
	SampleIntervalMS int
	SimCadenceMS     int
	SimNoise         float64

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte

	// Serial sensor
	SerialPort     string
	SerialBaudRate int

	// Persistence
	StoreBackend        string
	StorePath           string
	StoreKey            string
	FirestoreProject    string
	FirestoreCollection string

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	TopicIMURaw  string
	TopicSteps   string

	// Web Server
	WebServerPort int

	// Display
	DisplayEnabled          bool
	DisplayUpdateIntervalMS int

	LogLevel slog.Level
}

// Keys lists every key understood by setValue. Environment variables with
// these names override the file.
var Keys = []string{
	"STEP_THRESHOLD", "MIN_STEP_INTERVAL_MS", "MOVEMENT_THRESHOLD", "MOVEMENT_DECAY_MS",
	"CALIBRATION_SAMPLES", "BATCH_FLUSH_INTERVAL_MS", "CALORIE_COEFFICIENT",
	"MOVING_CALORIE_BONUS", "DAILY_GOAL", "ROLLOVER_POLL_INTERVAL_MS",
	"SENSOR_SOURCE", "SAMPLE_INTERVAL_MS", "SIM_CADENCE_MS", "SIM_NOISE",
	"IMU_SPI_DEVICE", "IMU_CS_PIN", "IMU_ACCEL_RANGE", "SERIAL_PORT", "SERIAL_BAUD_RATE",
	"STORE_BACKEND", "STORE_PATH", "STORE_KEY", "FIRESTORE_PROJECT", "FIRESTORE_COLLECTION",
	"MQTT_BROKER", "MQTT_CLIENT_ID", "TOPIC_IMU_RAW", "TOPIC_STEPS",
	"WEB_SERVER_PORT", "DISPLAY_ENABLED", "DISPLAY_UPDATE_INTERVAL_MS", "LOG_LEVEL",
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration that runs the simulated source against a
// local JSON file.
func Default() *Config {
	d := pedometer.DefaultConfig()
	return &Config{
		StepThreshold:        d.StepThreshold,
		MinStepIntervalMS:    int(d.MinStepInterval / time.Millisecond),
		MovementThreshold:    d.MovementThreshold,
		MovementDecayMS:      int(d.MovementDecay / time.Millisecond),
		CalibrationSample:    d.CalibrationSamples,
		BatchFlushIntervalMS: 0,
		CalorieCoefficient:   d.CalorieCoefficient,
		MovingCalorieBonus:   d.MovingCalorieBonus,
		DailyGoal:            d.DailyGoal,
		RolloverPollMS:       int(d.RolloverPollInterval / time.Millisecond),

		SensorSource:     SourceSimulated,
		SampleIntervalMS: 100,
		SimCadenceMS:     550,
		SimNoise:         0.02,

		IMUSPIDevice:   "/dev/spidev0.0",
		IMUCSPin:       "GPIO8",
		IMUAccelRange:  0,
		SerialPort:     "/dev/ttyUSB0",
		SerialBaudRate: 115200,

		StoreBackend:        StoreFile,
		StorePath:           "step_tracker.json",
		StoreKey:            d.StoreKey,
		FirestoreCollection: "step_tracker",

		MQTTBroker:   "tcp://localhost:1883",
		MQTTClientID: "step-tracker",
		TopicIMURaw:  "tracker/imu/raw",
		TopicSteps:   "tracker/steps",

		WebServerPort:           8080,
		DisplayUpdateIntervalMS: 500,
		LogLevel:                slog.LevelInfo,
	}
}

// Load reads the KEY=VALUE configuration file on top of the defaults,
// applies environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := cfg.apply(values); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}

	env := make(map[string]string)
	for _, key := range Keys {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	if err := cfg.apply(env); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply sets values in key order so errors are reported deterministically.
func (c *Config) apply(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := c.setValue(k, strings.TrimSpace(values[k])); err != nil {
			return err
		}
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Step detection
	case "STEP_THRESHOLD":
		c.StepThreshold, err = parsePositiveFloat(key, value)
	case "MIN_STEP_INTERVAL_MS":
		c.MinStepIntervalMS, err = parseInt(key, value, 0, 10_000)
	case "MOVEMENT_THRESHOLD":
		c.MovementThreshold, err = parsePositiveFloat(key, value)
	case "MOVEMENT_DECAY_MS":
		c.MovementDecayMS, err = parseInt(key, value, 1, 600_000)
	case "CALIBRATION_SAMPLES":
		c.CalibrationSample, err = parseInt(key, value, 0, 10_000)

	// Aggregation and metrics
	case "BATCH_FLUSH_INTERVAL_MS":
		c.BatchFlushIntervalMS, err = parseInt(key, value, 0, 3_600_000)
	case "CALORIE_COEFFICIENT":
		c.CalorieCoefficient, err = parsePositiveFloat(key, value)
	case "MOVING_CALORIE_BONUS":
		c.MovingCalorieBonus, err = parsePositiveFloat(key, value)
		if err == nil && c.MovingCalorieBonus < 1 {
			err = fmt.Errorf("MOVING_CALORIE_BONUS must be >= 1, got %v", c.MovingCalorieBonus)
		}
	case "DAILY_GOAL":
		c.DailyGoal, err = parseInt(key, value, 0, 1_000_000)
	case "ROLLOVER_POLL_INTERVAL_MS":
		c.RolloverPollMS, err = parseInt(key, value, 1, 3_600_000)

	// Sensor source
	case "SENSOR_SOURCE":
		switch value {
		case SourceSimulated, SourceMPU9250, SourceMQTT, SourceSerial:
			c.SensorSource = value
		default:
			err = fmt.Errorf("SENSOR_SOURCE must be one of simulated, mpu9250, mqtt, serial, got %q", value)
		}
	case "SAMPLE_INTERVAL_MS":
		c.SampleIntervalMS, err = parseInt(key, value, 1, 10_000)
	case "SIM_CADENCE_MS":
		c.SimCadenceMS, err = parseInt(key, value, 100, 60_000)
	case "SIM_NOISE":
		c.SimNoise, err = strconv.ParseFloat(value, 64)
		if err != nil || c.SimNoise < 0 {
			err = fmt.Errorf("invalid SIM_NOISE %q", value)
		}

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		var rangeVal int
		rangeVal, err = strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)

	// Serial sensor
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value, 1200, 4_000_000)

	// Persistence
	case "STORE_BACKEND":
		switch value {
		case StoreFile, StoreSQLite, StoreFirestore, StoreMemory:
			c.StoreBackend = value
		default:
			err = fmt.Errorf("STORE_BACKEND must be one of file, sqlite, firestore, memory, got %q", value)
		}
	case "STORE_PATH":
		c.StorePath = value
	case "STORE_KEY":
		c.StoreKey = value
	case "FIRESTORE_PROJECT":
		c.FirestoreProject = value
	case "FIRESTORE_COLLECTION":
		c.FirestoreCollection = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_IMU_RAW":
		c.TopicIMURaw = value
	case "TOPIC_STEPS":
		c.TopicSteps = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 0, 65535)

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
	case "DISPLAY_UPDATE_INTERVAL_MS":
		c.DisplayUpdateIntervalMS, err = parseInt(key, value, 50, 60_000)

	case "LOG_LEVEL":
		if uerr := c.LogLevel.UnmarshalText([]byte(value)); uerr != nil {
			err = fmt.Errorf("invalid LOG_LEVEL %q: %w", value, uerr)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseInt(key, value string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, n)
	}
	return n, nil
}

func parsePositiveFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %v", key, f)
	}
	return f, nil
}

// validate checks that the fields the selected backends need are set.
func (c *Config) validate() error {
	switch c.SensorSource {
	case SourceMPU9250:
		if c.IMUSPIDevice == "" || c.IMUCSPin == "" {
			return fmt.Errorf("IMU_SPI_DEVICE and IMU_CS_PIN are required for the mpu9250 source")
		}
	case SourceMQTT:
		if c.MQTTBroker == "" || c.TopicIMURaw == "" {
			return fmt.Errorf("MQTT_BROKER and TOPIC_IMU_RAW are required for the mqtt source")
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for the serial source")
		}
	}

	switch c.StoreBackend {
	case StoreFile, StoreSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("STORE_PATH is required for the %s store", c.StoreBackend)
		}
	case StoreFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT is required for the firestore store")
		}
	}

	if err := c.Engine().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// Engine converts the file values into the pedometer configuration.
func (c *Config) Engine() pedometer.Config {
	d := pedometer.DefaultConfig()
	d.StepThreshold = c.StepThreshold
	d.MinStepInterval = ms(c.MinStepIntervalMS)
	d.MovementThreshold = c.MovementThreshold
	d.MovementDecay = ms(c.MovementDecayMS)
	d.CalibrationSamples = c.CalibrationSample
	d.BatchFlushInterval = ms(c.BatchFlushIntervalMS)
	d.CalorieCoefficient = c.CalorieCoefficient
	d.MovingCalorieBonus = c.MovingCalorieBonus
	d.DailyGoal = c.DailyGoal
	d.RolloverPollInterval = ms(c.RolloverPollMS)
	d.StoreKey = c.StoreKey
	return d
}

// SampleInterval is the sensor polling period.
func (c *Config) SampleInterval() time.Duration {
	return ms(c.SampleIntervalMS)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
