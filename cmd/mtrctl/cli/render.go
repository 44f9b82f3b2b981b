package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

// RenderOptions describes a local render from a JSON snapshot file.
type RenderOptions struct {
	Kind      string
	In        string
	Out       string
	AssetRoot string
	Branding  string
	Stdout    io.Writer
	Stderr    io.Writer
}

// RenderCommand renders a snapshot without touching the database. Kind
// is request, quote or complaint.
func RenderCommand(ctx context.Context, opts RenderOptions) int {
	raw, err := os.ReadFile(opts.In)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "read snapshot: %v\n", err)
		return 1
	}
	branding, err := render.LoadBranding(opts.Branding)
	if err != nil {
		fmt.Fprintln(opts.Stderr, err)
		return 1
	}
	renderer := render.New(render.Options{
		AssetRoot: opts.AssetRoot,
		Branding:  &branding,
		Logger:    slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	res, err := renderSnapshot(ctx, renderer, opts.Kind, raw)
	if err != nil {
		fmt.Fprintln(opts.Stderr, err)
		return 1
	}
	if err := os.WriteFile(opts.Out, res.PDF, 0o644); err != nil {
		fmt.Fprintf(opts.Stderr, "write pdf: %v\n", err)
		return 1
	}
	fmt.Fprintf(opts.Stdout, "%s: %d page(s), %d bytes, %d warning(s)\n", opts.Out, res.Pages, len(res.PDF), len(res.Warnings))
	return 0
}

func renderSnapshot(ctx context.Context, r *render.Renderer, kind string, raw []byte) (*render.Result, error) {
	switch kind {
	case "request":
		var snap render.RequestSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode request snapshot: %w", err)
		}
		return r.RenderRequest(ctx, snap)
	case "quote":
		var snap render.QuoteSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode quote snapshot: %w", err)
		}
		return r.RenderQuote(ctx, snap)
	case "complaint":
		var snap render.ComplaintSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode complaint snapshot: %w", err)
		}
		return r.RenderComplaint(ctx, snap)
	}
	return nil, fmt.Errorf("unknown document kind %q", kind)
}
