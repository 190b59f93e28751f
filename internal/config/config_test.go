package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("# nothing but a comment\n\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.DisplayI2CAddr, test.ShouldEqual, uint16(0x3C))
	test.That(t, cfg.MagI2CAddr, test.ShouldEqual, uint16(0x1E))
	test.That(t, cfg.MagAvgSamples, test.ShouldEqual, 8)
	test.That(t, cfg.MagODRHz, test.ShouldEqual, 15)
	test.That(t, cfg.MagGainCode, test.ShouldEqual, byte(2))
	test.That(t, cfg.MagMode, test.ShouldEqual, "continuous")
	test.That(t, cfg.AccelI2CAddr, test.ShouldEqual, uint16(0x68))
	test.That(t, cfg.AccelMode, test.ShouldEqual, "low_power")
	test.That(t, cfg.SampleInterval, test.ShouldEqual, 50)
	test.That(t, cfg.LampTestMS, test.ShouldEqual, 100)
	test.That(t, cfg.MQTTBroker, test.ShouldBeEmpty)
	test.That(t, cfg.NMEATalker, test.ShouldEqual, "HC")
	test.That(t, cfg.RegisterDebugPort, test.ShouldEqual, 8081)
	test.That(t, cfg.RegisterDebugWritable, test.ShouldBeEmpty)
}

func TestParseOverrides(t *testing.T) {
	in := `
I2C_BUS=1
DISPLAY_I2C_ADDR=0x3D
MAG_AVG_SAMPLES = 4
MAG_ODR_HZ=75
MAG_GAIN_CODE=5
MAG_MODE=Single
ACCEL_MODE=normal
FAULT_LED_PIN=GPIO17
SAMPLE_INTERVAL=20
LAMP_TEST_MS=0
MQTT_BROKER=tcp://localhost:1883
TOPIC_HEADING=boat/heading
NMEA_SERIAL_PORT=/dev/ttyUSB0
NMEA_BAUD_RATE=38400
NMEA_TALKER=hc
LOG_LEVEL=DEBUG
`
	cfg, err := Parse(strings.NewReader(in))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.I2CBus, test.ShouldEqual, "1")
	test.That(t, cfg.DisplayI2CAddr, test.ShouldEqual, uint16(0x3D))
	test.That(t, cfg.MagAvgSamples, test.ShouldEqual, 4)
	test.That(t, cfg.MagODRHz, test.ShouldEqual, 75)
	test.That(t, cfg.MagGainCode, test.ShouldEqual, byte(5))
	test.That(t, cfg.MagMode, test.ShouldEqual, "single")
	test.That(t, cfg.AccelMode, test.ShouldEqual, "normal")
	test.That(t, cfg.FaultLEDPin, test.ShouldEqual, "GPIO17")
	test.That(t, cfg.SampleInterval, test.ShouldEqual, 20)
	test.That(t, cfg.LampTestMS, test.ShouldEqual, 0)
	test.That(t, cfg.MQTTBroker, test.ShouldEqual, "tcp://localhost:1883")
	test.That(t, cfg.TopicHeading, test.ShouldEqual, "boat/heading")
	test.That(t, cfg.NMEASerialPort, test.ShouldEqual, "/dev/ttyUSB0")
	test.That(t, cfg.NMEABaudRate, test.ShouldEqual, 38400)
	test.That(t, cfg.NMEATalker, test.ShouldEqual, "HC")
	test.That(t, cfg.LogLevel, test.ShouldEqual, "debug")
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		msg  string
	}{
		{"missing equals", "MAG_MODE continuous", "invalid config line 1"},
		{"unknown key", "\nFOO=bar", "config line 2: unknown config key"},
		{"bad address", "MAG_I2C_ADDR=zz", "invalid MAG_I2C_ADDR"},
		{"wide address", "MAG_I2C_ADDR=0x1FE", "7-bit address"},
		{"gain range", "MAG_GAIN_CODE=9", "MAG_GAIN_CODE must be 0-7"},
		{"averaging", "MAG_AVG_SAMPLES=3", "MAG_AVG_SAMPLES must be"},
		{"rate", "MAG_ODR_HZ=10", "MAG_ODR_HZ must be"},
		{"mag mode", "MAG_MODE=idle", "MAG_MODE must be"},
		{"accel mode", "ACCEL_MODE=fast", "ACCEL_MODE must be"},
		{"interval", "SAMPLE_INTERVAL=0", "SAMPLE_INTERVAL must be positive"},
		{"lamp test", "LAMP_TEST_MS=-1", "LAMP_TEST_MS must not be negative"},
		{"talker", "NMEA_TALKER=HCX", "NMEA_TALKER must be two characters"},
		{"log level", "LOG_LEVEL=trace", "LOG_LEVEL must be"},
		{"debug port", "REGISTER_DEBUG_PORT=70000", "REGISTER_DEBUG_PORT out of range"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.in))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
		})
	}
}

func TestLoadAndGlobal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecompass_config.txt")
	test.That(t, os.WriteFile(path, []byte("SAMPLE_INTERVAL=75\n"), 0o600), test.ShouldBeNil)

	cfg, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.SampleInterval, test.ShouldEqual, 75)

	_, err = Load(filepath.Join(dir, "missing.txt"))
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, InitGlobal(path), test.ShouldBeNil)
	test.That(t, Get().SampleInterval, test.ShouldEqual, 75)
	// Later calls are no-ops.
	test.That(t, InitGlobal(filepath.Join(dir, "missing.txt")), test.ShouldBeNil)
	test.That(t, Get().SampleInterval, test.ShouldEqual, 75)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "ecompass_config.txt"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.I2CBus, test.ShouldEqual, "1")
	test.That(t, cfg.FaultLEDPin, test.ShouldEqual, "GPIO17")
	test.That(t, cfg.RegisterDebugWritable, test.ShouldNotBeEmpty)
}
