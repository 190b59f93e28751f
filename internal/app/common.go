package app

import (
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edaniels/golog"
	serial "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a named development logger at the given level
// ("debug", "info", "warn" or "error").
func NewLogger(name, level string) (golog.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg := golog.NewDevelopmentLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return l.Sugar().Named(name), nil
}

// connectMQTT connects a client with automatic reconnect.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "mqtt connect %s", broker)
	}
	return client, nil
}

// openSerial opens an 8N1 port for NMEA traffic.
func openSerial(port string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	rwc, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial %s", port)
	}
	return rwc, nil
}
