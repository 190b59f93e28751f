package compass

import (
	"github.com/relabs-tech/ecompass/internal/oled"
	"github.com/relabs-tech/ecompass/internal/orientation"
)

// Label is fixed text. Rows are display pages, columns pixels.
type Label struct {
	Row   int
	Col   int
	Text  string
	Small bool
}

// Tick is a fixed line segment.
type Tick struct {
	X0, Y0, X1, Y1 int
}

// Field is where a value is written. The value is followed by the degree
// glyph and the rest of the band is cleared up to oled.LastColumn.
type Field struct {
	Row int
	Col int
}

// Area is a rectangle of whole pages.
type Area struct {
	Pages    oled.PageRange
	ColStart int
	ColEnd   int
}

// Layout places everything the loop draws.
type Layout struct {
	Labels []Label
	Ticks  []Tick

	Heading Field
	Pitch   Field
	Roll    Field

	Dial        orientation.Dial
	NeedleArea  Area
	DegreeGlyph rune
}

// DefaultLayout is the 128x64 screen: the rose on the left half, the
// three readouts on the right.
var DefaultLayout = Layout{
	Labels: []Label{
		{Row: 0, Col: 29, Text: "N", Small: true},
		{Row: 4, Col: 0, Text: "W", Small: true},
		{Row: 4, Col: 60, Text: "E", Small: true},
		{Row: 7, Col: 29, Text: "S", Small: true},
		{Row: 1, Col: 64, Text: "H ="},
		{Row: 4, Col: 64, Text: "P ="},
		{Row: 6, Col: 64, Text: "R ="},
	},
	Ticks: []Tick{
		{1, 1, 7, 7},
		{62, 1, 56, 7},
		{1, 62, 7, 56},
		{56, 56, 62, 62},
	},
	Heading: Field{Row: 1, Col: 88},
	Pitch:   Field{Row: 4, Col: 88},
	Roll:    Field{Row: 6, Col: 88},

	Dial: orientation.DefaultDial,
	// Rows 8..55 of the rose. A needle pointing due south ends at y=56,
	// below this area, and that pixel is never cleared.
	NeedleArea:  Area{Pages: oled.Pages(1, 6), ColStart: 8, ColEnd: 57},
	DegreeGlyph: '°',
}
