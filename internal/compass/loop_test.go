package compass

import (
	"context"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"periph.io/x/conn/v3/display/displaytest"

	"github.com/relabs-tech/ecompass/internal/imu"
	"github.com/relabs-tech/ecompass/internal/oled"
	"github.com/relabs-tech/ecompass/internal/orientation"
)

// recorder collects every call made by the loop, in order, across all
// fakes.
type recorder struct {
	calls []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) since(n int) []string {
	return append([]string(nil), r.calls[n:]...)
}

type fakeScreen struct {
	rec      *recorder
	font     string
	col      int
	initErr  error
	flushErr error
}

func (s *fakeScreen) Init() error {
	s.rec.add("display.Init")
	return s.initErr
}
func (s *fakeScreen) ClearDisplay()       { s.rec.add("display.ClearDisplay") }
func (s *fakeScreen) SetFont(f oled.Font) { s.font = f.Name; s.rec.add("SetFont(%s)", f.Name) }
func (s *fakeScreen) SetPosition(row, col int) {
	s.col = col
	s.rec.add("SetPosition(%d,%d)", row, col)
}
func (s *fakeScreen) PutChar(r rune) { s.PutString(string(r)) }
func (s *fakeScreen) PutString(str string) {
	adv := 6
	if s.font == "large" {
		adv = 8
	}
	s.col += adv * len([]rune(str))
	s.rec.add("PutString(%s)", str)
}
func (s *fakeScreen) DrawLine(x0, y0, x1, y1 int) {
	s.rec.add("DrawLine(%d,%d,%d,%d)", x0, y0, x1, y1)
}
func (s *fakeScreen) ClearArea(p oled.PageRange, c0, c1 int) {
	s.rec.add("ClearArea(%d-%d,%d,%d)", p.First, p.Last, c0, c1)
}
func (s *fakeScreen) Column() int { return s.col }
func (s *fakeScreen) Flush() error {
	s.rec.add("display.Flush")
	return s.flushErr
}

type fakeMag struct {
	rec     *recorder
	sample  imu.MagSample
	initErr error
	readErr error
}

func (m *fakeMag) Init() error {
	m.rec.add("mag.Init")
	return m.initErr
}

func (m *fakeMag) ReadRaw(buf []byte) error {
	m.rec.add("mag.ReadRaw")
	if m.readErr != nil {
		return m.readErr
	}
	imu.EncodeMag(m.sample, buf)
	return nil
}

type fakeAcc struct {
	rec     *recorder
	sample  imu.AccelSample
	initErr error
	readErr error
}

func (a *fakeAcc) Init() error {
	a.rec.add("acc.Init")
	return a.initErr
}

func (a *fakeAcc) ReadRaw(buf []byte) error {
	a.rec.add("acc.ReadRaw")
	if a.readErr != nil {
		return a.readErr
	}
	imu.EncodeMotion(imu.Motion{Accel: a.sample}, buf)
	return nil
}

type fakeLamp struct{ rec *recorder }

func (f *fakeLamp) On() error  { f.rec.add("lamp.On"); return nil }
func (f *fakeLamp) Off() error { f.rec.add("lamp.Off"); return nil }

type fakePub struct {
	rec      *recorder
	err      error
	readings []orientation.Reading
}

func (p *fakePub) Publish(r orientation.Reading) error {
	p.rec.add("Publish")
	p.readings = append(p.readings, r)
	return p.err
}

type rig struct {
	rec    *recorder
	screen *fakeScreen
	mag    *fakeMag
	acc    *fakeAcc
	pub    *fakePub
	clk    *clock.Mock
	loop   *Loop
}

var (
	level = imu.AccelSample{Z: 16384}
	north = imu.MagSample{X: 100}
)

func newRig(t *testing.T, mutate func(*Options)) *rig {
	t.Helper()
	rec := &recorder{}
	r := &rig{
		rec:    rec,
		screen: &fakeScreen{rec: rec},
		mag:    &fakeMag{rec: rec, sample: north},
		acc:    &fakeAcc{rec: rec, sample: level},
		pub:    &fakePub{rec: rec},
		clk:    clock.NewMock(),
	}
	opts := Options{
		Screen:        r.screen,
		Magnetometer:  r.mag,
		Accelerometer: r.acc,
		Indicator:     &fakeLamp{rec: rec},
		Publisher:     r.pub,
		Clock:         r.clk,
		Logger:        golog.NewTestLogger(t),
	}
	if mutate != nil {
		mutate(&opts)
	}
	loop, err := New(opts)
	test.That(t, err, test.ShouldBeNil)
	r.loop = loop
	return r
}

// advance keeps moving the mock clock until fn returns.
func advance(clk *clock.Mock, step time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	for {
		select {
		case err := <-done:
			return err
		default:
			clk.Add(step)
		}
	}
}

var chrome = []string{
	"display.ClearDisplay",
	"SetFont(small)",
	"SetPosition(0,29)", "PutString(N)",
	"SetPosition(4,0)", "PutString(W)",
	"SetPosition(4,60)", "PutString(E)",
	"SetPosition(7,29)", "PutString(S)",
	"DrawLine(1,1,7,7)",
	"DrawLine(62,1,56,7)",
	"DrawLine(1,62,7,56)",
	"DrawLine(56,56,62,62)",
	"SetFont(large)",
	"SetPosition(1,64)", "PutString(H =)",
	"SetPosition(4,64)", "PutString(P =)",
	"SetPosition(6,64)", "PutString(R =)",
	"display.Flush",
}

func TestNewRequiresDevices(t *testing.T) {
	_, err := New(Options{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInitOrderAndChrome(t *testing.T) {
	r := newRig(t, nil)
	test.That(t, r.loop.State(), test.ShouldEqual, StateInit)
	test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
	test.That(t, r.loop.State(), test.ShouldEqual, StateRunning)

	want := append([]string{"display.Init", "mag.Init", "acc.Init"}, chrome...)
	test.That(t, r.rec.calls, test.ShouldResemble, want)

	// Init is idempotent once running.
	n := len(r.rec.calls)
	test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
	test.That(t, r.rec.since(n), test.ShouldBeEmpty)
}

func TestLampTest(t *testing.T) {
	r := newRig(t, func(o *Options) { o.LampTest = 100 * time.Millisecond })
	start := r.clk.Now()
	err := advance(r.clk, 10*time.Millisecond, func() error {
		return r.loop.Init(context.Background())
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.rec.calls[:3], test.ShouldResemble, []string{"lamp.On", "lamp.Off", "display.Init"})
	test.That(t, r.clk.Now().Sub(start) >= 100*time.Millisecond, test.ShouldBeTrue)
}

func TestInitFailures(t *testing.T) {
	boom := errors.New("boom")
	for _, tc := range []struct {
		name   string
		setup  func(*rig)
		device string
		op     string
		calls  []string
	}{
		{
			name:   "display",
			setup:  func(r *rig) { r.screen.initErr = boom },
			device: DeviceDisplay, op: "init",
			calls: []string{"display.Init", "lamp.On"},
		},
		{
			name:   "magnetometer",
			setup:  func(r *rig) { r.mag.initErr = boom },
			device: DeviceMagnetometer, op: "init",
			calls: []string{"display.Init", "mag.Init", "lamp.On"},
		},
		{
			name:   "accelerometer",
			setup:  func(r *rig) { r.acc.initErr = boom },
			device: DeviceAccelerometer, op: "init",
			calls: []string{"display.Init", "mag.Init", "acc.Init", "lamp.On"},
		},
		{
			name:   "first flush",
			setup:  func(r *rig) { r.screen.flushErr = boom },
			device: DeviceDisplay, op: "flush",
			calls: append(append([]string{"display.Init", "mag.Init", "acc.Init"}, chrome...), "lamp.On"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, nil)
			tc.setup(r)
			err := r.loop.Init(context.Background())
			test.That(t, errors.Is(err, ErrFaulted), test.ShouldBeTrue)
			test.That(t, errors.Is(err, boom), test.ShouldBeTrue)

			var de *DeviceError
			test.That(t, errors.As(err, &de), test.ShouldBeTrue)
			test.That(t, de.Device, test.ShouldEqual, tc.device)
			test.That(t, de.Op, test.ShouldEqual, tc.op)
			test.That(t, r.loop.State(), test.ShouldEqual, StateFaulted)
			test.That(t, r.rec.calls, test.ShouldResemble, tc.calls)

			// Nothing touches a device afterwards.
			n := len(r.rec.calls)
			test.That(t, r.loop.Step(context.Background()), test.ShouldEqual, ErrFaulted)
			test.That(t, r.loop.Init(context.Background()), test.ShouldEqual, ErrFaulted)
			test.That(t, r.loop.Run(context.Background()), test.ShouldEqual, ErrFaulted)
			test.That(t, r.rec.since(n), test.ShouldBeEmpty)
		})
	}
}

func TestStepBeforeInit(t *testing.T) {
	r := newRig(t, nil)
	test.That(t, r.loop.Step(context.Background()), test.ShouldNotBeNil)
	test.That(t, r.rec.calls, test.ShouldBeEmpty)
}

func TestStepLevelNorth(t *testing.T) {
	r := newRig(t, nil)
	test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)

	n := len(r.rec.calls)
	test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)
	test.That(t, r.rec.since(n), test.ShouldResemble, []string{
		"mag.ReadRaw",
		"acc.ReadRaw",
		"SetFont(large)", "SetPosition(1,88)", "PutString(0)", "PutString(°)", "ClearArea(1-2,104,127)",
		"SetFont(large)", "SetPosition(4,88)", "PutString(0)", "PutString(°)", "ClearArea(4-5,104,127)",
		"SetFont(large)", "SetPosition(6,88)", "PutString(0)", "PutString(°)", "ClearArea(6-7,104,127)",
		"ClearArea(1-6,8,57)",
		"DrawLine(32,32,32,8)",
		"display.Flush",
		"Publish",
	})

	test.That(t, r.pub.readings, test.ShouldHaveLength, 1)
	got := r.pub.readings[0]
	test.That(t, got.HeadingDeg, test.ShouldEqual, 0)
	test.That(t, got.Needle, test.ShouldResemble, orientation.NeedlePoint{X: 32, Y: 8})
	test.That(t, got.Raw.Mx, test.ShouldEqual, int16(100))
	test.That(t, got.Raw.Az, test.ShouldEqual, int16(16384))

	latest, ok := r.loop.Latest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, latest, test.ShouldResemble, got)
}

func TestNeedleRedrawOnlyOnChange(t *testing.T) {
	r := newRig(t, nil)
	test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
	test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)

	countNeedle := func(calls []string) (clears, lines int) {
		for _, c := range calls {
			switch c {
			case "ClearArea(1-6,8,57)":
				clears++
			}
			if len(c) > 8 && c[:8] == "DrawLine" {
				lines++
			}
		}
		return
	}

	n := len(r.rec.calls)
	test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)
	clears, lines := countNeedle(r.rec.since(n))
	test.That(t, clears, test.ShouldEqual, 0)
	test.That(t, lines, test.ShouldEqual, 0)

	// Turn to east: one clear and one line.
	r.mag.sample = imu.MagSample{Y: 100}
	n = len(r.rec.calls)
	test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)
	calls := r.rec.since(n)
	clears, lines = countNeedle(calls)
	test.That(t, clears, test.ShouldEqual, 1)
	test.That(t, lines, test.ShouldEqual, 1)
	test.That(t, calls, test.ShouldContain, "DrawLine(32,32,56,32)")
	test.That(t, calls, test.ShouldContain, "PutString(90)")
}

func TestFieldClearsFollowTextWidth(t *testing.T) {
	for _, tc := range []struct {
		name  string
		acc   imu.AccelSample
		pitch string
		clear string
	}{
		{"zero", imu.AccelSample{Z: 16384}, "PutString(0)", "ClearArea(4-5,104,127)"},
		{"one digit negative", imu.AccelSample{X: 1500, Z: 16384}, "PutString(-5)", "ClearArea(4-5,112,127)"},
		{"two digits", imu.AccelSample{X: -5000, Z: 16384}, "PutString(16)", "ClearArea(4-5,112,127)"},
		{"two digits negative", imu.AccelSample{X: 16384, Z: 16384}, "PutString(-45)", "ClearArea(4-5,120,127)"},
		{"straight down", imu.AccelSample{X: 16384, Z: 1}, "PutString(-90)", "ClearArea(4-5,120,127)"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, nil)
			r.acc.sample = tc.acc
			test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
			n := len(r.rec.calls)
			test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)
			calls := r.rec.since(n)
			// Pitch is the second field.
			test.That(t, calls[8], test.ShouldEqual, "SetPosition(4,88)")
			test.That(t, calls[9], test.ShouldEqual, tc.pitch)
			test.That(t, calls[10], test.ShouldEqual, "PutString(°)")
			test.That(t, calls[11], test.ShouldEqual, tc.clear)
		})
	}
}

func TestThreeDigitHeading(t *testing.T) {
	r := newRig(t, nil)
	r.mag.sample = imu.MagSample{X: -100, Y: -1}
	test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
	n := len(r.rec.calls)
	test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)
	calls := r.rec.since(n)
	test.That(t, calls[4], test.ShouldEqual, "PutString(180)")
	test.That(t, calls[6], test.ShouldEqual, "ClearArea(1-2,120,127)")
}

func TestShorterValuesLeaveNoTrace(t *testing.T) {
	render := func(steps ...func(r *rig)) *oled.Display {
		screen := oled.New(&displaytest.Drawer{Img: image.NewNRGBA(image.Rect(0, 0, oled.Width, oled.Height))})
		r := newRig(t, func(o *Options) { o.Screen = screen })
		test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
		for _, set := range steps {
			set(r)
			test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)
		}
		return screen
	}
	wide := func(r *rig) {
		r.mag.sample = imu.MagSample{X: -100, Y: -1}
		r.acc.sample = imu.AccelSample{X: 16384, Z: 1}
	}
	narrow := func(r *rig) {
		r.mag.sample = north
		r.acc.sample = level
	}

	got := render(wide, narrow).Frame()
	want := render(narrow).Frame()
	for y := 0; y < oled.Height; y++ {
		for x := 88; x <= oled.LastColumn; x++ {
			test.That(t, got.BitAt(x, y), test.ShouldEqual, want.BitAt(x, y))
		}
	}
}

func TestReadFailuresFault(t *testing.T) {
	boom := errors.New("i2c nack")
	for _, tc := range []struct {
		name   string
		setup  func(*rig)
		device string
		calls  []string
	}{
		{"magnetometer", func(r *rig) { r.mag.readErr = boom }, DeviceMagnetometer,
			[]string{"mag.ReadRaw", "lamp.On"}},
		{"accelerometer", func(r *rig) { r.acc.readErr = boom }, DeviceAccelerometer,
			[]string{"mag.ReadRaw", "acc.ReadRaw", "lamp.On"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, nil)
			test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
			tc.setup(r)
			n := len(r.rec.calls)
			err := r.loop.Run(context.Background())
			test.That(t, errors.Is(err, ErrFaulted), test.ShouldBeTrue)
			var de *DeviceError
			test.That(t, errors.As(err, &de), test.ShouldBeTrue)
			test.That(t, de.Device, test.ShouldEqual, tc.device)
			test.That(t, de.Op, test.ShouldEqual, "read")
			test.That(t, r.rec.since(n), test.ShouldResemble, tc.calls)
			test.That(t, r.pub.readings, test.ShouldBeEmpty)

			n = len(r.rec.calls)
			test.That(t, r.loop.Step(context.Background()), test.ShouldEqual, ErrFaulted)
			test.That(t, r.rec.since(n), test.ShouldBeEmpty)
		})
	}
}

func TestFlushFailureFaults(t *testing.T) {
	r := newRig(t, nil)
	test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
	r.screen.flushErr = errors.New("bus busy")
	err := r.loop.Step(context.Background())
	var de *DeviceError
	test.That(t, errors.As(err, &de), test.ShouldBeTrue)
	test.That(t, de.Device, test.ShouldEqual, DeviceDisplay)
	test.That(t, de.Op, test.ShouldEqual, "flush")
	test.That(t, r.pub.readings, test.ShouldBeEmpty)
	test.That(t, r.loop.State(), test.ShouldEqual, StateFaulted)
	test.That(t, err.Error(), test.ShouldEqual, "compass: display flush: bus busy")
}

func TestPublishErrorIsNotFatal(t *testing.T) {
	logger, logs := golog.NewObservedTestLogger(t)
	r := newRig(t, func(o *Options) { o.Logger = logger })
	r.pub.err = errors.New("broker down")
	test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
	test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)
	test.That(t, r.loop.Step(context.Background()), test.ShouldBeNil)
	test.That(t, r.loop.State(), test.ShouldEqual, StateRunning)
	test.That(t, r.pub.readings, test.ShouldHaveLength, 2)
	test.That(t, logs.FilterMessageSnippet("broker down").Len(), test.ShouldEqual, 2)
}

func TestStepWaitsInterval(t *testing.T) {
	r := newRig(t, func(o *Options) { o.Interval = 50 * time.Millisecond })
	test.That(t, r.loop.Init(context.Background()), test.ShouldBeNil)
	start := r.clk.Now()
	err := advance(r.clk, 10*time.Millisecond, func() error {
		return r.loop.Step(context.Background())
	})
	test.That(t, err, test.ShouldBeNil)
	latest, ok := r.loop.Latest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, latest.Time.Sub(start) >= 50*time.Millisecond, test.ShouldBeTrue)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, func(o *Options) { o.Interval = time.Second })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.loop.Run(ctx) }()

	// Let a cycle complete, then stop.
	for {
		r.clk.Add(time.Second)
		if _, ok := r.loop.Latest(); ok {
			break
		}
	}
	cancel()
	err := <-done
	test.That(t, err, test.ShouldEqual, context.Canceled)
	test.That(t, r.loop.State(), test.ShouldEqual, StateRunning)
}

func TestStateString(t *testing.T) {
	test.That(t, StateInit.String(), test.ShouldEqual, "init")
	test.That(t, StateRunning.String(), test.ShouldEqual, "running")
	test.That(t, StateFaulted.String(), test.ShouldEqual, "faulted")
	test.That(t, State(9).String(), test.ShouldEqual, "State(9)")
}
