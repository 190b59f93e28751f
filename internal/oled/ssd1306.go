package oled

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"
)

// SSD1306 command bytes.
const (
	cmdDisplayOff      = 0xAE
	cmdDisplayOn       = 0xAF
	cmdSetClockDiv     = 0xD5
	cmdSetMultiplex    = 0xA8
	cmdSetOffset       = 0xD3
	cmdSetStartLine    = 0x40
	cmdChargePump      = 0x8D
	cmdMemoryMode      = 0x20
	cmdSegRemap        = 0xA1
	cmdComScanDec      = 0xC8
	cmdSetComPins      = 0xDA
	cmdSetContrast     = 0x81
	cmdSetPrecharge    = 0xD9
	cmdSetVComDetect   = 0xDB
	cmdDisplayResume   = 0xA4
	cmdNormalDisplay   = 0xA6
	cmdScrollOff       = 0x2E
	cmdColumnAddr      = 0x21
	cmdPageAddr        = 0x22
	controlCommandByte = 0x00
	controlDataByte    = 0x40
)

// DefaultAddr is the usual SSD1306 I²C address with SA0 low.
const DefaultAddr = 0x3C

// initSequence brings a 128x64 panel up with the internal charge pump,
// horizontal addressing and the origin in the top left corner.
var initSequence = []byte{
	cmdDisplayOff,
	cmdSetClockDiv, 0x80,
	cmdSetMultiplex, Height - 1,
	cmdSetOffset, 0x00,
	cmdSetStartLine | 0x00,
	cmdChargePump, 0x14,
	cmdMemoryMode, 0x00,
	cmdSegRemap,
	cmdComScanDec,
	cmdSetComPins, 0x12,
	cmdSetContrast, 0xCF,
	cmdSetPrecharge, 0xF1,
	cmdSetVComDetect, 0x40,
	cmdDisplayResume,
	cmdNormalDisplay,
	cmdScrollOff,
	cmdDisplayOn,
}

// SSD1306 drives a 128x64 monochrome OLED over I²C. It implements
// display.Drawer with page-aligned partial updates.
type SSD1306 struct {
	dev *i2c.Dev
}

var _ display.Drawer = (*SSD1306)(nil)

// NewSSD1306 returns a panel handle. It does not touch the bus.
func NewSSD1306(bus i2c.Bus, addr uint16) *SSD1306 {
	return &SSD1306{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

func (s *SSD1306) String() string {
	return fmt.Sprintf("SSD1306{%s, 0x%02X}", s.dev.Bus, s.dev.Addr)
}

// Init sends the power-up sequence.
func (s *SSD1306) Init() error {
	return errors.Wrap(s.command(initSequence...), "ssd1306 init")
}

// Halt turns the panel off. GDDRAM is retained.
func (s *SSD1306) Halt() error {
	return errors.Wrap(s.command(cmdDisplayOff), "ssd1306 halt")
}

// ColorModel implements display.Drawer.
func (s *SSD1306) ColorModel() color.Model {
	return BitModel
}

// Bounds implements display.Drawer.
func (s *SSD1306) Bounds() image.Rectangle {
	return image.Rect(0, 0, Width, Height)
}

// Draw implements display.Drawer. The update is widened to whole pages and
// sent as one addressed GDDRAM write.
func (s *SSD1306) Draw(dstRect image.Rectangle, src image.Image, sp image.Point) error {
	r := dstRect.Intersect(s.Bounds())
	if r.Empty() {
		return nil
	}
	p0 := r.Min.Y / PageHeight
	p1 := (r.Max.Y - 1) / PageHeight
	c0, c1 := r.Min.X, r.Max.X-1

	frame, ok := src.(*Frame)
	if !ok || sp != dstRect.Min {
		// Generic source: rasterize into a scratch frame first.
		frame = NewFrame()
		for p := p0; p <= p1; p++ {
			for y := p * PageHeight; y < (p+1)*PageHeight; y++ {
				for x := c0; x <= c1; x++ {
					c := src.At(x-dstRect.Min.X+sp.X, y-dstRect.Min.Y+sp.Y)
					frame.SetBit(x, y, BitModel.Convert(c).(Bit))
				}
			}
		}
	}

	if err := s.command(cmdColumnAddr, byte(c0), byte(c1), cmdPageAddr, byte(p0), byte(p1)); err != nil {
		return errors.Wrap(err, "ssd1306 address window")
	}
	data := make([]byte, 0, 1+(p1-p0+1)*(c1-c0+1))
	data = append(data, controlDataByte)
	for p := p0; p <= p1; p++ {
		for c := c0; c <= c1; c++ {
			data = append(data, frame.Page(p, c))
		}
	}
	return errors.Wrap(s.dev.Tx(data, nil), "ssd1306 write gddram")
}

func (s *SSD1306) command(cmds ...byte) error {
	return s.dev.Tx(append([]byte{controlCommandByte}, cmds...), nil)
}
