// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package compass runs the sample, compute and render cycle of the
// e-compass.
package compass

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/relabs-tech/ecompass/internal/imu"
	"github.com/relabs-tech/ecompass/internal/oled"
	"github.com/relabs-tech/ecompass/internal/orientation"
)

// Screen is the drawing surface. *oled.Display implements it.
type Screen interface {
	Init() error
	ClearDisplay()
	SetFont(f oled.Font)
	SetPosition(row, col int)
	PutChar(r rune)
	PutString(s string)
	DrawLine(x0, y0, x1, y1 int)
	ClearArea(pages oled.PageRange, colStart, colEnd int)
	Column() int
	Flush() error
}

// Magnetometer delivers 6-byte x,z,y blocks.
type Magnetometer interface {
	Init() error
	ReadRaw(buf []byte) error
}

// Accelerometer delivers 14-byte motion blocks.
type Accelerometer interface {
	Init() error
	ReadRaw(buf []byte) error
}

// Indicator is the fault lamp.
type Indicator interface {
	On() error
	Off() error
}

// Publisher receives every reading after the screen is updated.
type Publisher interface {
	Publish(r orientation.Reading) error
}

// State of the loop.
type State int

const (
	StateInit State = iota
	StateRunning
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateFaulted:
		return "faulted"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Options wires a Loop. Screen, Magnetometer and Accelerometer are
// required; the rest have defaults.
type Options struct {
	Screen        Screen
	Magnetometer  Magnetometer
	Accelerometer Accelerometer
	Indicator     Indicator // nil: no lamp
	Publisher     Publisher // nil: no telemetry

	Interval time.Duration // delay before each cycle
	LampTest time.Duration // 0 skips the start-up blink

	Layout *Layout    // nil: DefaultLayout
	Small  *oled.Font // nil: oled.Small
	Large  *oled.Font // nil: oled.Large

	Clock  clock.Clock
	Logger golog.Logger
}

// Loop is the render loop. It is not safe for concurrent use apart from
// State and Latest.
type Loop struct {
	screen Screen
	mag    Magnetometer
	acc    Accelerometer
	ind    Indicator
	pub    Publisher

	interval time.Duration
	lampTest time.Duration
	layout   Layout
	small    oled.Font
	large    oled.Font
	clk      clock.Clock
	logger   golog.Logger

	magBuf [imu.MagBlockLen]byte
	accBuf [imu.MotionBlockLen]byte

	hasNeedle bool
	needle    orientation.NeedlePoint

	mu     sync.Mutex
	state  State
	latest *orientation.Reading
}

// New validates opts and returns a loop in StateInit.
func New(opts Options) (*Loop, error) {
	if opts.Screen == nil || opts.Magnetometer == nil || opts.Accelerometer == nil {
		return nil, errors.New("compass: screen, magnetometer and accelerometer are required")
	}
	l := &Loop{
		screen:   opts.Screen,
		mag:      opts.Magnetometer,
		acc:      opts.Accelerometer,
		ind:      opts.Indicator,
		pub:      opts.Publisher,
		interval: opts.Interval,
		lampTest: opts.LampTest,
		layout:   DefaultLayout,
		small:    oled.Small,
		large:    oled.Large,
		clk:      opts.Clock,
		logger:   opts.Logger,
	}
	if l.ind == nil {
		l.ind = nopIndicator{}
	}
	if opts.Layout != nil {
		l.layout = *opts.Layout
	}
	if opts.Large != nil {
		l.large = *opts.Large
	}
	if opts.Small != nil {
		l.small = *opts.Small
	}
	if l.clk == nil {
		l.clk = clock.New()
	}
	if l.logger == nil {
		l.logger = golog.NewDevelopmentLogger("compass")
	}
	return l, nil
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Latest returns the reading of the last completed cycle.
func (l *Loop) Latest() (orientation.Reading, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.latest == nil {
		return orientation.Reading{}, false
	}
	return *l.latest, true
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run initializes the devices and cycles until ctx ends or a device fails.
// Cancellation returns the context error and leaves the loop Running.
func (l *Loop) Run(ctx context.Context) error {
	if l.State() == StateInit {
		if err := l.Init(ctx); err != nil {
			return err
		}
	}
	for {
		if err := l.Step(ctx); err != nil {
			return err
		}
	}
}

// Init blinks the lamp, brings up display, magnetometer and accelerometer
// in that order and draws the static parts of the screen.
func (l *Loop) Init(ctx context.Context) error {
	switch l.State() {
	case StateFaulted:
		return ErrFaulted
	case StateRunning:
		return nil
	}

	if l.lampTest > 0 {
		l.indicate(true)
		err := l.wait(ctx, l.lampTest)
		l.indicate(false)
		if err != nil {
			return err
		}
	}

	if err := l.screen.Init(); err != nil {
		return l.fault(DeviceDisplay, "init", err)
	}
	if err := l.mag.Init(); err != nil {
		return l.fault(DeviceMagnetometer, "init", err)
	}
	if err := l.acc.Init(); err != nil {
		return l.fault(DeviceAccelerometer, "init", err)
	}

	l.screen.ClearDisplay()
	l.drawChrome()
	if err := l.screen.Flush(); err != nil {
		return l.fault(DeviceDisplay, "flush", err)
	}

	l.setState(StateRunning)
	l.logger.Infof("compass: running, interval %v", l.interval)
	return nil
}

func (l *Loop) drawChrome() {
	for _, small := range []bool{true, false} {
		if small {
			l.screen.SetFont(l.small)
		} else {
			l.screen.SetFont(l.large)
		}
		for _, lb := range l.layout.Labels {
			if lb.Small != small {
				continue
			}
			l.screen.SetPosition(lb.Row, lb.Col)
			l.screen.PutString(lb.Text)
		}
		if small {
			for _, t := range l.layout.Ticks {
				l.screen.DrawLine(t.X0, t.Y0, t.X1, t.Y1)
			}
		}
	}
}

// Step runs one cycle: wait, sample, compute, draw, flush, publish.
func (l *Loop) Step(ctx context.Context) error {
	switch l.State() {
	case StateFaulted:
		return ErrFaulted
	case StateInit:
		return errors.New("compass: step before init")
	}

	if err := l.wait(ctx, l.interval); err != nil {
		return err
	}

	if err := l.mag.ReadRaw(l.magBuf[:]); err != nil {
		return l.fault(DeviceMagnetometer, "read", err)
	}
	if err := l.acc.ReadRaw(l.accBuf[:]); err != nil {
		return l.fault(DeviceAccelerometer, "read", err)
	}
	mag, err := imu.DecodeMag(l.magBuf[:])
	if err != nil {
		return l.fault(DeviceMagnetometer, "decode", err)
	}
	motion, err := imu.DecodeMotion(l.accBuf[:])
	if err != nil {
		return l.fault(DeviceAccelerometer, "decode", err)
	}

	o := orientation.Compute(motion.Accel, mag)
	needle := l.layout.Dial.Needle(o.Azimuth)
	reading := orientation.NewReading(l.clk.Now(), o, needle, imu.NewIMURaw(motion, mag))

	l.drawField(l.layout.Heading, reading.HeadingDeg)
	l.drawField(l.layout.Pitch, reading.PitchDeg)
	l.drawField(l.layout.Roll, reading.RollDeg)

	if !l.hasNeedle || needle != l.needle {
		a := l.layout.NeedleArea
		l.screen.ClearArea(a.Pages, a.ColStart, a.ColEnd)
		l.screen.DrawLine(l.layout.Dial.CenterX, l.layout.Dial.CenterY, needle.X, needle.Y)
	}
	l.needle = needle
	l.hasNeedle = true

	if err := l.screen.Flush(); err != nil {
		return l.fault(DeviceDisplay, "flush", err)
	}

	l.mu.Lock()
	l.latest = &reading
	l.mu.Unlock()

	if l.pub != nil {
		if err := l.pub.Publish(reading); err != nil {
			l.logger.Warnf("compass: publish: %v", err)
		}
	}
	l.logger.Debugf("compass: H=%d P=%d R=%d", reading.HeadingDeg, reading.PitchDeg, reading.RollDeg)
	return nil
}

// drawField writes the value and its glyph, then blanks whatever an
// earlier, longer value left to the right.
func (l *Loop) drawField(f Field, value int) {
	l.screen.SetFont(l.large)
	l.screen.SetPosition(f.Row, f.Col)
	l.screen.PutString(strconv.Itoa(value))
	l.screen.PutChar(l.layout.DegreeGlyph)
	l.screen.ClearArea(l.large.Span(f.Row), l.screen.Column(), oled.LastColumn)
}

func (l *Loop) fault(device, op string, err error) error {
	l.setState(StateFaulted)
	l.indicate(true)
	de := &DeviceError{Device: device, Op: op, Err: err}
	l.logger.Errorf("%v", de)
	return de
}

func (l *Loop) indicate(on bool) {
	var err error
	if on {
		err = l.ind.On()
	} else {
		err = l.ind.Off()
	}
	if err != nil {
		l.logger.Warnf("compass: indicator: %v", err)
	}
}

func (l *Loop) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := l.clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopIndicator struct{}

func (nopIndicator) On() error  { return nil }
func (nopIndicator) Off() error { return nil }
