// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// I2C bus shared by the display and both sensors.
	// Empty selects the first bus registered by periph.
	I2CBus string

	// Display
	DisplayI2CAddr uint16

	// Magnetometer (HMC5883L)
	MagI2CAddr    uint16
	MagAvgSamples int    // 1, 2, 4 or 8 samples averaged per measurement
	MagODRHz      int    // 1 (0.75), 2 (1.5), 3, 7 (7.5), 15, 30 or 75 Hz
	MagGainCode   byte   // 0-7, CRB bits 7:5
	MagMode       string // "continuous" or "single"

	// Accelerometer (MPU-6050)
	AccelI2CAddr uint16
	AccelMode    string // "low_power" or "normal"

	// Fault indicator. Empty disables the LED.
	FaultLEDPin string

	// Timing
	SampleInterval int // milliseconds between cycles
	LampTestMS     int // start-up indicator blink, 0 disables

	// MQTT. An empty broker disables MQTT telemetry.
	MQTTBroker          string
	MQTTClientIDCompass string
	MQTTClientIDWeb     string
	MQTTClientIDConsole string

	// Topics
	TopicHeading string

	// NMEA 0183 output. An empty port disables it.
	NMEASerialPort string
	NMEABaudRate   int
	NMEATalker     string

	// Web Server
	WebServerPort int

	// Register debug tool
	RegisterDebugPort     int
	RegisterDebugWritable string // address ranges open to writes, e.g. "0x00-0x02,0x6B"

	// Logging: debug, info, warn or error.
	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config populated with the values used when a key is
// absent from the file. They match the reference board wiring.
func Default() *Config {
	return &Config{
		DisplayI2CAddr: 0x3C,

		MagI2CAddr:    0x1E,
		MagAvgSamples: 8,
		MagODRHz:      15,
		MagGainCode:   2,
		MagMode:       "continuous",

		AccelI2CAddr: 0x68,
		AccelMode:    "low_power",

		SampleInterval: 50,
		LampTestMS:     100,

		MQTTClientIDCompass: "ecompass",
		MQTTClientIDWeb:     "ecompass-web-subscriber",
		MQTTClientIDConsole: "ecompass-console-subscriber",
		TopicHeading:        "ecompass/heading",

		NMEABaudRate: 4800,
		NMEATalker:   "HC",

		WebServerPort: 8080,
		LogLevel:      "info",

		RegisterDebugPort: 8081,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	case "I2C_BUS":
		c.I2CBus = value

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := parseAddr(key, value)
		if err != nil {
			return err
		}
		c.DisplayI2CAddr = addr

	// Magnetometer
	case "MAG_I2C_ADDR":
		addr, err := parseAddr(key, value)
		if err != nil {
			return err
		}
		c.MagI2CAddr = addr
	case "MAG_AVG_SAMPLES":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_AVG_SAMPLES %q: %w", value, err)
		}
		c.MagAvgSamples = val
	case "MAG_ODR_HZ":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_ODR_HZ %q: %w", value, err)
		}
		c.MagODRHz = val
	case "MAG_GAIN_CODE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_GAIN_CODE %q: %w", value, err)
		}
		if val < 0 || val > 7 {
			return fmt.Errorf("MAG_GAIN_CODE must be 0-7 (0=±0.88Ga ... 7=±8.1Ga), got %d", val)
		}
		c.MagGainCode = byte(val)
	case "MAG_MODE":
		c.MagMode = strings.ToLower(value)

	// Accelerometer
	case "ACCEL_I2C_ADDR":
		addr, err := parseAddr(key, value)
		if err != nil {
			return err
		}
		c.AccelI2CAddr = addr
	case "ACCEL_MODE":
		c.AccelMode = strings.ToLower(value)

	case "FAULT_LED_PIN":
		c.FaultLEDPin = value

	// Timing
	case "SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.SampleInterval = interval
	case "LAMP_TEST_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LAMP_TEST_MS %q: %w", value, err)
		}
		c.LampTestMS = ms

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_COMPASS":
		c.MQTTClientIDCompass = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_HEADING":
		c.TopicHeading = value

	// NMEA
	case "NMEA_SERIAL_PORT":
		c.NMEASerialPort = value
	case "NMEA_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NMEA_BAUD_RATE %q: %w", value, err)
		}
		c.NMEABaudRate = rate
	case "NMEA_TALKER":
		c.NMEATalker = strings.ToUpper(value)

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Register debug
	case "REGISTER_DEBUG_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_PORT %q: %w", value, err)
		}
		c.RegisterDebugPort = port
	case "REGISTER_DEBUG_WRITABLE":
		c.RegisterDebugWritable = value

	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if addr > 0x7F {
		return 0, fmt.Errorf("%s must be a 7-bit address, got 0x%X", key, addr)
	}
	return uint16(addr), nil
}

// validate checks value ranges and cross-field constraints.
func (c *Config) validate() error {
	switch c.MagAvgSamples {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("MAG_AVG_SAMPLES must be 1, 2, 4 or 8, got %d", c.MagAvgSamples)
	}
	switch c.MagODRHz {
	case 1, 2, 3, 7, 15, 30, 75:
	default:
		return fmt.Errorf("MAG_ODR_HZ must be one of 1, 2, 3, 7, 15, 30, 75, got %d", c.MagODRHz)
	}
	if c.MagMode != "continuous" && c.MagMode != "single" {
		return fmt.Errorf("MAG_MODE must be continuous or single, got %q", c.MagMode)
	}
	if c.AccelMode != "low_power" && c.AccelMode != "normal" {
		return fmt.Errorf("ACCEL_MODE must be low_power or normal, got %q", c.AccelMode)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL must be positive, got %d", c.SampleInterval)
	}
	if c.LampTestMS < 0 {
		return fmt.Errorf("LAMP_TEST_MS must not be negative, got %d", c.LampTestMS)
	}
	if c.NMEASerialPort != "" && c.NMEABaudRate <= 0 {
		return fmt.Errorf("NMEA_BAUD_RATE is required when NMEA_SERIAL_PORT is set")
	}
	if len(c.NMEATalker) != 2 {
		return fmt.Errorf("NMEA_TALKER must be two characters, got %q", c.NMEATalker)
	}
	if c.MQTTBroker != "" && c.TopicHeading == "" {
		return fmt.Errorf("TOPIC_HEADING is required when MQTT_BROKER is set")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	if c.RegisterDebugPort <= 0 || c.RegisterDebugPort > 65535 {
		return fmt.Errorf("REGISTER_DEBUG_PORT out of range: %d", c.RegisterDebugPort)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
