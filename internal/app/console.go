package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	nmea "github.com/adrianmo/go-nmea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/relabs-tech/ecompass/internal/config"
	"github.com/relabs-tech/ecompass/internal/orientation"
	"github.com/relabs-tech/ecompass/internal/telemetry"
)

// FormatReading renders one reading as a console line.
func FormatReading(r orientation.Reading) string {
	return fmt.Sprintf(
		"[HDG] H=%3d°  P=%4d°  R=%4d°  (%6.2f°)  needle=(%2d,%2d)  mag=%6d,%6d,%6d  acc=%6d,%6d,%6d",
		r.HeadingDeg, r.PitchDeg, r.RollDeg, r.Heading,
		r.Needle.X, r.Needle.Y,
		r.Raw.Mx, r.Raw.My, r.Raw.Mz,
		r.Raw.Ax, r.Raw.Ay, r.Raw.Az,
	)
}

// FormatHDG renders a heading sentence received over NMEA.
func FormatHDG(s nmea.HDG) string {
	return fmt.Sprintf("[NMEA] %sHDG heading=%6.1f°", s.TalkerID(), s.Heading)
}

// RunConsoleMQTT prints every reading published on the heading topic until
// ctx is cancelled.
func RunConsoleMQTT(ctx context.Context, w io.Writer) error {
	cfg := config.Get()
	logger, err := NewLogger("console", cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.MQTTBroker == "" {
		return errors.New("console: MQTT_BROKER is not set")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Infof("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicHeading, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r orientation.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			logger.Warnf("console: heading unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(w, FormatReading(r))
	})
	token.Wait()
	if token.Error() != nil {
		return errors.Wrapf(token.Error(), "subscribe %s", cfg.TopicHeading)
	}
	logger.Infof("console: subscribed to %s", cfg.TopicHeading)

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}

// RunConsoleNMEA prints the HDG sentences arriving on the NMEA serial port
// until ctx is cancelled.
func RunConsoleNMEA(ctx context.Context, w io.Writer) error {
	cfg := config.Get()
	logger, err := NewLogger("console", cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.NMEASerialPort == "" {
		return errors.New("console: NMEA_SERIAL_PORT is not set")
	}

	port, err := openSerial(cfg.NMEASerialPort, cfg.NMEABaudRate)
	if err != nil {
		return err
	}
	logger.Infof("console: NMEA port %s opened at %d baud", cfg.NMEASerialPort, cfg.NMEABaudRate)

	// Closing the port is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	err = telemetry.ReadHDG(port, func(s nmea.HDG) {
		fmt.Fprintln(w, FormatHDG(s))
	})
	if ctx.Err() != nil {
		logger.Info("console: shutting down")
		return nil
	}
	return err
}
