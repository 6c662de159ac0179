// Grid loading and saving across PGM, TIFF, PNG, GIF, JPEG and WebP
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"strel-optimizer/internal/core"
)

// Channel selects how color rasters are reduced to one sample per pixel
type Channel string

const (
	// ChannelLuma uses the ITU-R 601 luma of the pixel
	ChannelLuma Channel = "luma"
	// ChannelGreen keeps the green channel, where vessels contrast best in
	// fundus photographs
	ChannelGreen Channel = "green"
)

// ParseChannel resolves a channel name
func ParseChannel(name string) (Channel, error) {
	switch Channel(strings.ToLower(name)) {
	case "", ChannelLuma:
		return ChannelLuma, nil
	case ChannelGreen:
		return ChannelGreen, nil
	default:
		return "", fmt.Errorf("unknown channel %q", name)
	}
}

// Loader handles grid file operations
type Loader struct {
	logger  logrus.FieldLogger
	channel Channel
}

func NewLoader(logger logrus.FieldLogger, channel Channel) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if channel == "" {
		channel = ChannelLuma
	}
	return &Loader{logger: logger, channel: channel}
}

// SupportedFormats lists the extensions LoadGrid understands
func SupportedFormats() []string {
	return []string{".pgm", ".tif", ".tiff", ".png", ".gif", ".jpg", ".jpeg", ".bmp", ".webp"}
}

func isSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// LoadGrid reads an image file into a grid. Missing files wrap
// fs.ErrNotExist; undecodable data wraps ErrFormat.
func (l *Loader) LoadGrid(path string) (*core.Grid, error) {
	l.logger.WithField("path", path).Debug("Loading grid")

	if !isSupported(path) {
		return nil, fmt.Errorf("unsupported image format %q: %w", filepath.Ext(path), ErrFormat)
	}

	var (
		g   *core.Grid
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".pgm") {
		g, err = l.loadPGM(path)
	} else {
		g, err = l.loadRaster(path)
	}
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"path": path,
		"rows": g.Rows(),
		"cols": g.Cols(),
	}).Debug("Grid loaded")
	return g, nil
}

func (l *Loader) loadPGM(path string) (*core.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	g, err := DecodePGM(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return g, nil
}

func (l *Loader) loadRaster(path string) (*core.Grid, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %v: %w", path, err, ErrFormat)
	}
	return FromImage(img, l.channel), nil
}

// FromImage converts any image to a grid using the given channel
func FromImage(img image.Image, channel Channel) *core.Grid {
	b := img.Bounds()
	g := core.NewGrid(b.Dy(), b.Dx())

	if channel == ChannelGreen {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				g.Set(y-b.Min.Y, x-b.Min.X, int(c.G))
			}
		}
		return g
	}

	gray, ok := img.(*image.Gray)
	if !ok {
		gray = image.NewGray(b)
		draw.Draw(gray, b, img, b.Min, draw.Src)
	}
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
		for x, v := range row {
			g.Set(y, x, int(v))
		}
	}
	return g
}

// ToImage converts a grid to an 8-bit gray image, clamping samples
func ToImage(g *core.Grid) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Cols(), g.Rows()))
	for i := 0; i < g.Rows(); i++ {
		for j := 0; j < g.Cols(); j++ {
			img.Pix[i*img.Stride+j] = uint8(clampByte(g.At(i, j)))
		}
	}
	return img
}

// SaveGrid writes g in the format implied by the extension. comment is
// embedded in PGM headers and ignored elsewhere.
func (l *Loader) SaveGrid(g *core.Grid, path, comment string) error {
	l.logger.WithField("path", path).Debug("Saving grid")

	if g.Rows() == 0 || g.Cols() == 0 {
		return fmt.Errorf("cannot save empty grid")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp":
		if err := imaging.Save(ToImage(g), path); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
		return nil
	case ".pgm", ".tif", ".tiff", ".webp":
	default:
		return fmt.Errorf("unsupported image format %q: %w", ext, ErrFormat)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	switch ext {
	case ".pgm":
		err = EncodePGM(f, g, comment)
	case ".tif", ".tiff":
		err = tiff.Encode(f, ToImage(g), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case ".webp":
		err = nativewebp.Encode(f, ToImage(g), nil)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}

	l.logger.WithFields(logrus.Fields{
		"path": path,
		"rows": g.Rows(),
		"cols": g.Cols(),
	}).Info("Grid saved")
	return nil
}

// SavePreview writes a lossless WebP of g scaled so its longer side is at
// most maxSide pixels. Small grids such as structuring elements are
// upscaled with nearest-neighbour sampling to keep cell edges sharp.
func (l *Loader) SavePreview(g *core.Grid, path string, maxSide int) error {
	src := ToImage(g)
	w, h := g.Cols(), g.Rows()
	if w == 0 || h == 0 {
		return fmt.Errorf("cannot preview empty grid")
	}

	scale := float64(maxSide) / float64(max(w, h))
	dw, dh := max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
	dst := image.NewGray(image.Rect(0, 0, dw, dh))
	if scale >= 1 {
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := nativewebp.Encode(f, dst, nil); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
