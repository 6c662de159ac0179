// Portable graymap (PGM) codec for P2 and P5 files
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"strel-optimizer/internal/core"
)

// ErrFormat is returned for malformed or unsupported image data
var ErrFormat = errors.New("invalid image format")

// maxDimension bounds width and height to reject corrupt headers before
// allocating
const maxDimension = 1 << 15

type pgmReader struct {
	r *bufio.Reader
}

// token returns the next whitespace-delimited header token, skipping
// comments that run from '#' to end of line
func (p *pgmReader) token() (string, error) {
	var b strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			if err == io.EOF && b.Len() > 0 {
				return b.String(), nil
			}
			return "", err
		}
		switch {
		case c == '#' && b.Len() == 0:
			if _, err := p.r.ReadString('\n'); err != nil && err != io.EOF {
				return "", err
			}
		case isSpace(c):
			if b.Len() > 0 {
				return b.String(), nil
			}
		default:
			b.WriteByte(c)
		}
	}
}

func (p *pgmReader) int(field string) (int, error) {
	tok, err := p.token()
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", field, formatErr(err))
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer: %w", field, tok, ErrFormat)
	}
	return v, nil
}

// DecodePGM reads an ASCII (P2) or binary (P5) graymap with a maximum
// sample value of at most 255
func DecodePGM(r io.Reader) (*core.Grid, error) {
	p := &pgmReader{r: bufio.NewReader(r)}

	magic, err := p.token()
	if err != nil {
		return nil, fmt.Errorf("reading magic: %w", formatErr(err))
	}
	if magic != "P2" && magic != "P5" {
		return nil, fmt.Errorf("magic %q is not P2 or P5: %w", magic, ErrFormat)
	}

	width, err := p.int("width")
	if err != nil {
		return nil, err
	}
	height, err := p.int("height")
	if err != nil {
		return nil, err
	}
	if width < 1 || height < 1 || width > maxDimension || height > maxDimension {
		return nil, fmt.Errorf("dimensions %dx%d out of range: %w", width, height, ErrFormat)
	}
	maxVal, err := p.int("maximum value")
	if err != nil {
		return nil, err
	}
	if maxVal < 1 || maxVal > 255 {
		return nil, fmt.Errorf("maximum value %d not in [1,255]: %w", maxVal, ErrFormat)
	}

	g := core.NewGrid(height, width)
	pix := g.Pix()

	if magic == "P5" {
		// the single whitespace after the maximum value was consumed by token
		buf := make([]byte, len(pix))
		if _, err := io.ReadFull(p.r, buf); err != nil {
			return nil, fmt.Errorf("reading %d samples: %w", len(pix), formatErr(err))
		}
		for k, b := range buf {
			if int(b) > maxVal {
				return nil, fmt.Errorf("sample %d exceeds maximum %d: %w", b, maxVal, ErrFormat)
			}
			pix[k] = int(b)
		}
		return g, nil
	}

	for k := range pix {
		v, err := p.int("sample")
		if err != nil {
			return nil, err
		}
		if v < 0 || v > maxVal {
			return nil, fmt.Errorf("sample %d outside [0,%d]: %w", v, maxVal, ErrFormat)
		}
		pix[k] = v
	}
	return g, nil
}

// EncodePGM writes g as an ASCII (P2) graymap with maximum value 255 and an
// optional comment line. Samples are clamped to [0,255].
func EncodePGM(w io.Writer, g *core.Grid, comment string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "P2")
	for _, line := range strings.Split(comment, "\n") {
		if line != "" {
			fmt.Fprintf(bw, "# %s\n", line)
		}
	}
	fmt.Fprintf(bw, "%d %d\n255\n", g.Cols(), g.Rows())

	// netpbm recommends lines of at most 70 characters
	for i := 0; i < g.Rows(); i++ {
		width := 0
		for j := 0; j < g.Cols(); j++ {
			s := strconv.Itoa(clampByte(g.At(i, j)))
			if width > 0 && width+1+len(s) > 70 {
				bw.WriteByte('\n')
				width = 0
			}
			if width > 0 {
				bw.WriteByte(' ')
				width++
			}
			bw.WriteString(s)
			width += len(s)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// EncodePGMBinary writes g as a binary (P5) graymap
func EncodePGMBinary(w io.Writer, g *core.Grid, comment string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "P5")
	for _, line := range strings.Split(comment, "\n") {
		if line != "" {
			fmt.Fprintf(bw, "# %s\n", line)
		}
	}
	fmt.Fprintf(bw, "%d %d\n255\n", g.Cols(), g.Rows())
	for _, v := range g.Pix() {
		bw.WriteByte(byte(clampByte(v)))
	}
	return bw.Flush()
}

func formatErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("unexpected end of data: %w", ErrFormat)
	}
	return err
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
