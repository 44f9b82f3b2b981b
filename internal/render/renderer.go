// Package render lays out MTR business documents (quote requests, formal
// quotes and complaints) as A4 PDF files.
//
// Every call builds its own document from a read-only snapshot; a Renderer
// holds configuration only and is safe for concurrent use. Output is
// byte-identical for identical snapshots and asset files.
package render

import (
	"fmt"
	"log/slog"
	"time"
)

// Observer receives the outcome of every render.
type Observer interface {
	ObserveRender(document string, pages int, elapsed time.Duration, err error)
}

// Options configures a Renderer.
type Options struct {
	// AssetRoot is the directory holding the assets/ folder.
	AssetRoot string
	Branding  *Branding
	Logger    *slog.Logger
	Observer  Observer
}

// Renderer produces PDF documents.
type Renderer struct {
	assetRoot string
	branding  Branding
	logger    *slog.Logger
	observer  Observer
}

// New constructs a Renderer.
func New(opts Options) *Renderer {
	branding := DefaultBranding()
	if opts.Branding != nil {
		branding = *opts.Branding
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		assetRoot: opts.AssetRoot,
		branding:  branding,
		logger:    logger,
		observer:  opts.Observer,
	}
}

// Result is a rendered document with its layout trace.
type Result struct {
	PDF      []byte
	Pages    int
	Texts    []TextRun
	Sections []SectionMark
	// Warnings lists skipped assets and other non-fatal issues.
	Warnings []string
}

func (r *Renderer) newCanvas(title string, created time.Time, fr frame, theme Theme) *canvas {
	return newCanvas(title, created, fr, theme, newAssetSet(r.assetRoot), r.logger)
}

// run executes one render, turning library panics into errors and
// reporting to the observer.
func (r *Renderer) run(document string, fn func() (*Result, error)) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = &Error{Op: document, Err: fmt.Errorf("%w: %v", ErrLayout, rec)}
		}
		if err != nil {
			r.logger.Error("render document", slog.String("document", document), slog.Any("error", err))
		}
		if r.observer != nil {
			pages := 0
			if res != nil {
				pages = res.Pages
			}
			r.observer.ObserveRender(document, pages, time.Since(start), err)
		}
	}()
	return fn()
}
