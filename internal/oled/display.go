package oled

import (
	"image"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/display"
)

// PageRange is an inclusive range of display pages.
type PageRange struct {
	First int
	Last  int
}

// Pages returns the inclusive page range first..last.
func Pages(first, last int) PageRange {
	return PageRange{First: first, Last: last}
}

// Span returns the pages covered by a font placed at row.
func (f Font) Span(row int) PageRange {
	return Pages(row, row+f.Pages-1)
}

// Display is a text cursor and line drawing surface over a Frame. Drawing
// only touches memory; Flush sends the changed window to the panel.
type Display struct {
	panel display.Drawer
	frame *Frame

	font Font
	row  int
	col  int

	dirty image.Rectangle
}

// New returns a Display that renders into a fresh frame and flushes to
// panel.
func New(panel display.Drawer) *Display {
	return &Display{
		panel: panel,
		frame: NewFrame(),
		font:  Large,
	}
}

// Frame exposes the framebuffer, mostly for tests and previews.
func (d *Display) Frame() *Frame {
	return d.frame
}

// Init powers up the panel when it needs it.
func (d *Display) Init() error {
	if p, ok := d.panel.(interface{ Init() error }); ok {
		return p.Init()
	}
	return nil
}

// Halt switches the panel off.
func (d *Display) Halt() error {
	return d.panel.Halt()
}

// ClearDisplay blanks the whole frame.
func (d *Display) ClearDisplay() {
	d.frame.Clear()
	d.markDirty(d.frame.Bounds())
}

// SetFont selects the face used by PutChar and PutString.
func (d *Display) SetFont(f Font) {
	d.font = f
}

// SetPosition moves the text cursor to page row and pixel column col.
func (d *Display) SetPosition(row, col int) {
	d.row = row
	d.col = col
}

// Column returns the cursor column; it may run past LastColumn.
func (d *Display) Column() int {
	return d.col
}

// PutChar draws one glyph at the cursor and advances it.
func (d *Display) PutChar(r rune) {
	d.PutString(string(r))
}

// PutString draws s at the cursor and advances it past the last glyph.
func (d *Display) PutString(s string) {
	if d.font.Face == nil || s == "" {
		return
	}
	band := image.Rect(d.col, d.row*PageHeight, Width, d.row*PageHeight+d.font.Height()).
		Intersect(d.frame.Bounds())
	dr := &font.Drawer{
		Dst:  clip{Frame: d.frame, r: band},
		Src:  image.NewUniform(On),
		Face: d.font.Face,
		Dot:  fixed.P(d.col, d.row*PageHeight+d.font.Baseline),
	}
	// Glyphs only set pixels, so blank the cells first; whatever was
	// there before must not show through.
	cells := image.Rect(d.col, band.Min.Y, d.col+dr.MeasureString(s).Ceil(), band.Max.Y).Intersect(band)
	if !cells.Empty() {
		d.frame.ClearPages(cells.Min.Y/PageHeight, (cells.Max.Y-1)/PageHeight, cells.Min.X, cells.Max.X-1)
	}
	dr.DrawString(s)
	end := dr.Dot.X.Ceil()
	if !band.Empty() {
		d.markDirty(image.Rect(band.Min.X, band.Min.Y, min(end, Width), band.Max.Y))
	}
	d.col = end
}

// DrawLine draws a one pixel line between two points, ends included.
func (d *Display) DrawLine(x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	d.markDirty(image.Rect(min(x0, x1), min(y0, y1), max(x0, x1)+1, max(y0, y1)+1))

	e := dx + dy
	for {
		d.frame.SetBit(x0, y0, On)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// ClearArea blanks columns colStart..colEnd of the given pages, inclusive.
// Out of range parts are ignored, so clearing from a cursor that already
// ran off the right edge does nothing.
func (d *Display) ClearArea(pages PageRange, colStart, colEnd int) {
	p0, p1 := max(pages.First, 0), min(pages.Last, LastPage)
	c0, c1 := max(colStart, 0), min(colEnd, LastColumn)
	if p0 > p1 || c0 > c1 {
		return
	}
	d.frame.ClearPages(p0, p1, c0, c1)
	d.markDirty(image.Rect(c0, p0*PageHeight, c1+1, (p1+1)*PageHeight))
}

// Flush sends every region changed since the last flush to the panel.
func (d *Display) Flush() error {
	if d.dirty.Empty() {
		return nil
	}
	if err := d.panel.Draw(d.dirty, d.frame, d.dirty.Min); err != nil {
		return errors.Wrapf(err, "flush %v", d.dirty)
	}
	d.dirty = image.Rectangle{}
	return nil
}

func (d *Display) markDirty(r image.Rectangle) {
	r = r.Intersect(d.frame.Bounds())
	if r.Empty() {
		return
	}
	d.dirty = d.dirty.Union(r)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
