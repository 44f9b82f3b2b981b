package render

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/go-pdf/fpdf"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxImageSide bounds the pixel size of embedded images.
const maxImageSide = 1600

var pngOptions = fpdf.ImageOptions{ImageType: "PNG"}

// imageRef is an image registered with the current document.
type imageRef struct {
	name string
	w, h float64
}

// assetSet resolves static images below a root directory. It lives for a
// single render.
type assetSet struct {
	root   string
	loaded map[string]*imageRef
}

func newAssetSet(root string) *assetSet {
	return &assetSet{root: root, loaded: make(map[string]*imageRef)}
}

func (a *assetSet) resolve(rel string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(rel))
	return filepath.Join(a.root, clean)
}

// asset returns the first candidate that exists and decodes, registered
// with the document. Missing or broken files are skipped with a warning.
func (c *canvas) asset(candidates ...string) *imageRef {
	key := strings.Join(candidates, "|")
	if ref, ok := c.assets.loaded[key]; ok {
		return ref
	}
	var ref *imageRef
	for _, rel := range candidates {
		path := c.assets.resolve(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				c.warn("asset unreadable", slog.String("asset", rel), slog.Any("error", err))
			}
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			c.warn("asset undecodable", slog.String("asset", rel), slog.Any("error", err))
			continue
		}
		if ref = c.register("asset:"+rel, img); ref != nil {
			break
		}
	}
	if ref == nil {
		c.warn("asset missing", slog.String("assets", key))
	}
	c.assets.loaded[key] = ref
	return ref
}

// qrImage registers a generated QR code for content.
func (c *canvas) qrImage(content string, side int) *imageRef {
	key := "qr:" + content
	if ref, ok := c.assets.loaded[key]; ok {
		return ref
	}
	var ref *imageRef
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err == nil {
		code, err = barcode.Scale(code, side, side)
	}
	if err != nil {
		c.warn("qr encode", slog.Any("error", err))
	} else {
		ref = c.register(key, code)
	}
	c.assets.loaded[key] = ref
	return ref
}

// register flattens img onto white, bounds its size and hands it to fpdf
// as PNG.
func (c *canvas) register(name string, img image.Image) *imageRef {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		c.warn("asset empty", slog.String("asset", name))
		return nil
	}
	dw, dh := w, h
	if longest := max(w, h); longest > maxImageSide {
		dw = w * maxImageSide / longest
		dh = h * maxImageSide / longest
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(dw, 1), max(dh, 1)))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	if dw == w && dh == h {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Over)
	} else {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		c.warn("asset encode", slog.String("asset", name), slog.Any("error", err))
		return nil
	}
	c.pdf.RegisterImageOptionsReader(name, pngOptions, &buf)
	if err := c.pdf.Error(); err != nil {
		c.pdf.ClearError()
		c.warn("asset rejected", slog.String("asset", name), slog.Any("error", err))
		return nil
	}
	return &imageRef{name: name, w: float64(w), h: float64(h)}
}

// placeFit draws ref scaled to fit the box, keeping its ratio. When
// centred the image is centred on both axes. It returns the drawn size.
func (c *canvas) placeFit(ref *imageRef, x, y, boxW, boxH float64, centred bool) (float64, float64) {
	if ref == nil {
		return 0, 0
	}
	scale := min(boxW/ref.w, boxH/ref.h)
	w, h := ref.w*scale, ref.h*scale
	if centred {
		x += (boxW - w) / 2
		y += (boxH - h) / 2
	}
	c.pdf.ImageOptions(ref.name, x, y, w, h, false, pngOptions, 0, "")
	return w, h
}
