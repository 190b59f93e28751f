package oled

import (
	"image"
	"image/color"
)

const (
	// Width and Height of the panel in pixels.
	Width  = 128
	Height = 64
	// PageHeight is the number of pixel rows packed in one GDDRAM byte.
	PageHeight = 8
	// NumPages is the number of 8-row pages on the panel.
	NumPages = Height / PageHeight
	// LastColumn is the right-most pixel column.
	LastColumn = Width - 1
	// LastPage is the bottom page.
	LastPage = NumPages - 1
)

// Bit is a monochrome pixel.
type Bit bool

const (
	Off Bit = false
	On  Bit = true
)

// RGBA implements color.Color.
func (b Bit) RGBA() (r, g, bl, a uint32) {
	if b {
		return 0xffff, 0xffff, 0xffff, 0xffff
	}
	return 0, 0, 0, 0xffff
}

// BitModel converts any color to a Bit by luminance threshold.
var BitModel = color.ModelFunc(convertBit)

func convertBit(c color.Color) color.Color {
	if b, ok := c.(Bit); ok {
		return b
	}
	r, g, b, _ := c.RGBA()
	y := (299*r + 587*g + 114*b) / 1000
	return Bit(y >= 0x8000)
}

// Frame is a 128x64 1bpp image laid out exactly like SSD1306 GDDRAM: one
// byte per column per page, least significant bit on top.
type Frame struct {
	Pix [NumPages * Width]byte
}

// NewFrame returns a blank frame.
func NewFrame() *Frame {
	return &Frame{}
}

// ColorModel implements image.Image.
func (f *Frame) ColorModel() color.Model {
	return BitModel
}

// Bounds implements image.Image.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, Width, Height)
}

// At implements image.Image.
func (f *Frame) At(x, y int) color.Color {
	return f.BitAt(x, y)
}

// BitAt returns the pixel at (x, y); pixels outside the panel are Off.
func (f *Frame) BitAt(x, y int) Bit {
	if !(image.Point{x, y}.In(f.Bounds())) {
		return Off
	}
	return Bit(f.Pix[offset(x, y)]&mask(y) != 0)
}

// Set implements draw.Image.
func (f *Frame) Set(x, y int, c color.Color) {
	f.SetBit(x, y, BitModel.Convert(c).(Bit))
}

// SetBit sets one pixel; pixels outside the panel are ignored.
func (f *Frame) SetBit(x, y int, b Bit) {
	if !(image.Point{x, y}.In(f.Bounds())) {
		return
	}
	if b {
		f.Pix[offset(x, y)] |= mask(y)
	} else {
		f.Pix[offset(x, y)] &^= mask(y)
	}
}

// Page returns the GDDRAM byte for column col of page p.
func (f *Frame) Page(p, col int) byte {
	return f.Pix[p*Width+col]
}

// ClearPages zeroes columns c0..c1 of pages p0..p1, all inclusive.
func (f *Frame) ClearPages(p0, p1, c0, c1 int) {
	for p := p0; p <= p1; p++ {
		row := f.Pix[p*Width : (p+1)*Width]
		for c := c0; c <= c1; c++ {
			row[c] = 0
		}
	}
}

// Clear blanks the whole frame.
func (f *Frame) Clear() {
	f.Pix = [NumPages * Width]byte{}
}

func offset(x, y int) int {
	return (y/PageHeight)*Width + x
}

func mask(y int) byte {
	return 1 << uint(y%PageHeight)
}

// clip is a draw.Image restricted to a rectangle of a Frame. Glyph drawing
// goes through it so a font never spills outside its page band.
type clip struct {
	*Frame
	r image.Rectangle
}

func (c clip) Bounds() image.Rectangle {
	return c.r
}

func (c clip) Set(x, y int, col color.Color) {
	if !(image.Point{x, y}.In(c.r)) {
		return
	}
	c.Frame.Set(x, y, col)
}
