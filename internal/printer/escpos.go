package printer

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	esc = 0x1b
	gs  = 0x1d
	lf  = 0x0a
)

const (
	AlignLeft   = 0
	AlignCenter = 1
	AlignRight  = 2
)

const (
	SizeNormal = 0x00
	SizeTall   = 0x01
	SizeDouble = 0x11
)

const DefaultWidth = 48

// drawerPulse kicks the drawer wired to pin 2: ESC p 0 25 250.
var drawerPulse = []byte{esc, 'p', 0x00, 0x19, 0xfa}

// DrawerPulse returns a fresh copy of the cash drawer kick command.
func DrawerPulse() []byte {
	return append([]byte(nil), drawerPulse...)
}

// Document accumulates an ESC/POS byte stream together with a plain-text
// preview of what the paper will show.
type Document struct {
	buf     bytes.Buffer
	preview []string
	width   int
}

func NewDocument(width int) *Document {
	if width < 16 {
		width = DefaultWidth
	}
	d := &Document{width: width}
	d.buf.Write([]byte{esc, '@'})
	return d
}

func (d *Document) Width() int { return d.width }

func (d *Document) Align(align int) *Document {
	d.buf.Write([]byte{esc, 'a', byte(align)})
	return d
}

func (d *Document) Bold(on bool) *Document {
	var flag byte
	if on {
		flag = 1
	}
	d.buf.Write([]byte{esc, 'E', flag})
	return d
}

func (d *Document) Size(size byte) *Document {
	d.buf.Write([]byte{gs, '!', size})
	return d
}

func (d *Document) Text(s string) *Document {
	line := fold(s)
	d.buf.WriteString(line)
	d.buf.WriteByte(lf)
	d.preview = append(d.preview, line)
	return d
}

func (d *Document) Textf(format string, args ...any) *Document {
	return d.Text(fmt.Sprintf(format, args...))
}

func (d *Document) Feed(n int) *Document {
	for range n {
		d.buf.WriteByte(lf)
		d.preview = append(d.preview, "")
	}
	return d
}

func (d *Document) Separator(char byte) *Document {
	return d.Text(strings.Repeat(string(char), d.width))
}

// Columns writes left and right on one line, truncating left when both do
// not fit.
func (d *Document) Columns(left string, right string) *Document {
	left, right = fold(left), fold(right)
	room := d.width - len(right) - 1
	if room < 1 {
		return d.Text(left).Text(right)
	}
	if len(left) > room {
		left = left[:room]
	}
	return d.Text(left + strings.Repeat(" ", d.width-len(left)-len(right)) + right)
}

func (d *Document) Cut() *Document {
	d.buf.Write([]byte{gs, 'V', 'A', 0x10})
	return d
}

func (d *Document) Pulse() *Document {
	d.buf.Write(drawerPulse)
	return d
}

func (d *Document) Bytes() []byte {
	return d.buf.Bytes()
}

func (d *Document) Preview() string {
	return strings.Join(d.preview, "\n")
}

var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold strips diacritics so code page 437 printers show "Maracuya" rather
// than mojibake; anything still outside ASCII becomes '?'.
func fold(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	if isASCII(folded) {
		return folded
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
