// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ecompass/internal/config"
	"github.com/relabs-tech/ecompass/internal/sensors"
)

// RegisterCmd is a request from the register debug page.
type RegisterCmd struct {
	Action  string `json:"action"` // get_map, read, read_all, write, export_config
	Device  string `json:"device,omitempty"`
	Address string `json:"addr,omitempty"`
	Value   string `json:"value,omitempty"`
}

// RegisterResponse is sent back for every command.
type RegisterResponse struct {
	Type        string                 `json:"type"` // register_map, register_data, export_config, error
	Device      string                 `json:"device,omitempty"`
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
	Config      string                 `json:"config,omitempty"`
	Filename    string                 `json:"filename,omitempty"`
}

// RegisterConfigFile is the exported register snapshot.
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// AddrRange is an inclusive register address range.
type AddrRange struct {
	First, Last byte
}

// ParseAddrRanges parses lists like "0x00-0x02,0x6B".
func ParseAddrRanges(s string) ([]AddrRange, error) {
	var out []AddrRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := sensors.ParseHexByte(strings.TrimSpace(lo))
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = sensors.ParseHexByte(strings.TrimSpace(hi)); err != nil {
				return nil, err
			}
		}
		if last < first {
			return nil, errors.Errorf("address range %q runs backwards", part)
		}
		out = append(out, AddrRange{First: first, Last: last})
	}
	return out, nil
}

func inRanges(addr byte, ranges []AddrRange) bool {
	for _, r := range ranges {
		if addr >= r.First && addr <= r.Last {
			return true
		}
	}
	return false
}

// RegisterDebugger serves raw register access to the compass sensors over
// a websocket.
type RegisterDebugger struct {
	ports    map[string]*sensors.RegisterPort
	names    []string
	writable []AddrRange
	logger   golog.Logger
	now      func() time.Time
}

// NewRegisterDebugger serves ports. Writes are refused outside writable.
func NewRegisterDebugger(ports []*sensors.RegisterPort, writable []AddrRange, logger golog.Logger) *RegisterDebugger {
	d := &RegisterDebugger{
		ports:    make(map[string]*sensors.RegisterPort, len(ports)),
		writable: writable,
		logger:   logger,
		now:      time.Now,
	}
	for _, p := range ports {
		d.ports[p.Device] = p
		d.names = append(d.names, p.Device)
	}
	sort.Strings(d.names)
	return d
}

// ServeHTTP upgrades to a websocket and answers commands until the page
// goes away.
func (d *RegisterDebugger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warnf("register_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if len(d.names) > 0 {
		if err := conn.WriteJSON(d.registerMap(d.names[0])); err != nil {
			d.logger.Warnf("register_debug: error sending register map: %v", err)
			return
		}
	}

	for {
		var cmd RegisterCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.logger.Warnf("register_debug: websocket error: %v", err)
			}
			return
		}
		if err := conn.WriteJSON(d.Handle(cmd)); err != nil {
			d.logger.Warnf("register_debug: write: %v", err)
			return
		}
	}
}

// Handle executes one command.
func (d *RegisterDebugger) Handle(cmd RegisterCmd) RegisterResponse {
	if cmd.Action == "" {
		return errorResponse("missing action field")
	}
	if cmd.Device == "" && len(d.names) > 0 {
		cmd.Device = d.names[0]
	}
	port, ok := d.ports[cmd.Device]
	if !ok {
		return errorResponse(fmt.Sprintf("unknown device: %s", cmd.Device))
	}

	switch cmd.Action {
	case "get_map":
		return d.registerMap(cmd.Device)
	case "read":
		return d.handleRead(port, cmd)
	case "read_all":
		return d.handleReadAll(port)
	case "write":
		return d.handleWrite(port, cmd)
	case "export_config":
		return d.handleExportConfig(port)
	default:
		return errorResponse(fmt.Sprintf("unknown action: %s", cmd.Action))
	}
}

func (d *RegisterDebugger) handleRead(port *sensors.RegisterPort, cmd RegisterCmd) RegisterResponse {
	addr, err := sensors.ParseHexByte(cmd.Address)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid address format: %s", cmd.Address))
	}
	value, err := port.Read(addr)
	if err != nil {
		return errorResponse(fmt.Sprintf("read error: %v", err))
	}
	return RegisterResponse{
		Type:      "register_data",
		Device:    port.Device,
		Address:   sensors.FormatHex(addr),
		Value:     sensors.FormatHex(value),
		Timestamp: d.now().Format(time.RFC3339),
	}
}

func (d *RegisterDebugger) handleReadAll(port *sensors.RegisterPort) RegisterResponse {
	registers, err := port.ReadAll()
	if err != nil {
		return errorResponse(fmt.Sprintf("read all error: %v", err))
	}
	return RegisterResponse{
		Type:      "register_data",
		Device:    port.Device,
		Registers: hexMap(registers),
		Timestamp: d.now().Format(time.RFC3339),
	}
}

func (d *RegisterDebugger) handleWrite(port *sensors.RegisterPort, cmd RegisterCmd) RegisterResponse {
	addr, err := sensors.ParseHexByte(cmd.Address)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid address format: %s", cmd.Address))
	}
	value, err := sensors.ParseHexByte(cmd.Value)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid value format: %s", cmd.Value))
	}
	if !inRanges(addr, d.writable) {
		return errorResponse(fmt.Sprintf("register 0x%02X not in allowed write ranges", addr))
	}
	if err := port.Write(addr, value); err != nil {
		return errorResponse(fmt.Sprintf("write error: %v", err))
	}
	d.logger.Infof("register_debug: %s 0x%02X <- 0x%02X", port.Device, addr, value)
	return RegisterResponse{
		Type:      "register_data",
		Device:    port.Device,
		Address:   sensors.FormatHex(addr),
		Value:     sensors.FormatHex(value),
		Timestamp: d.now().Format(time.RFC3339),
		Message:   "write successful",
	}
}

func (d *RegisterDebugger) handleExportConfig(port *sensors.RegisterPort) RegisterResponse {
	registers, err := port.ReadAll()
	if err != nil {
		return errorResponse(fmt.Sprintf("export error: %v", err))
	}
	now := d.now()
	configJSON, err := json.Marshal(RegisterConfigFile{
		Version:   1,
		Device:    port.Device,
		Timestamp: now.Format(time.RFC3339),
		Registers: hexMap(registers),
	})
	if err != nil {
		return errorResponse(fmt.Sprintf("export error: %v", err))
	}
	return RegisterResponse{
		Type:     "export_config",
		Device:   port.Device,
		Message:  "config exported",
		Config:   string(configJSON),
		Filename: fmt.Sprintf("%s_%s_registers.json", port.Device, now.Format("20060102_150405")),
	}
}

func (d *RegisterDebugger) registerMap(device string) RegisterResponse {
	return RegisterResponse{
		Type:        "register_map",
		Device:      device,
		RegisterMap: d.ports[device].Map(),
	}
}

func hexMap(registers map[byte]byte) map[string]string {
	out := make(map[string]string, len(registers))
	for addr, value := range registers {
		out[sensors.FormatHex(addr)] = sensors.FormatHex(value)
	}
	return out
}

func errorResponse(message string) RegisterResponse {
	return RegisterResponse{Type: "error", Message: message}
}

// RunRegisterDebug opens the I2C bus and serves the register debug page
// until ctx is cancelled. The compass must not be running at the same
// time.
func RunRegisterDebug(ctx context.Context) error {
	cfg := config.Get()
	logger, err := NewLogger("register_debug", cfg.LogLevel)
	if err != nil {
		return err
	}
	writable, err := ParseAddrRanges(cfg.RegisterDebugWritable)
	if err != nil {
		return errors.Wrap(err, "REGISTER_DEBUG_WRITABLE")
	}

	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "periph host init")
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return errors.Wrapf(err, "open I2C bus %q", cfg.I2CBus)
	}
	defer bus.Close()

	dbg := NewRegisterDebugger([]*sensors.RegisterPort{
		sensors.NewRegisterPort("hmc5883l", bus, cfg.MagI2CAddr, sensors.HMC5883LRegisterMap()),
		sensors.NewRegisterPort("mpu6050", bus, cfg.AccelI2CAddr, sensors.MPU6050RegisterMap()),
	}, writable, logger)
	if len(writable) == 0 {
		logger.Info("register_debug: no writable ranges configured, read only")
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", dbg)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "web/register_debug.html")
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.RegisterDebugPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serve(ctx, srv, logger)
}
