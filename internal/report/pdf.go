package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecofin/internal/config"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrPDFDisabled is returned when PDF rendering is switched off in config.
var ErrPDFDisabled = errors.New("pdf rendering is disabled")

const defaultRenderTimeout = 30 * time.Second

// A4 in inches.
const (
	a4Width  = 8.27
	a4Height = 11.69
	margin   = 0.4
)

// PDFRenderer turns HTML into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// NewPDFRenderer returns a headless Chrome renderer, or one that always fails
// with ErrPDFDisabled when rendering is off.
func NewPDFRenderer(cfg config.PDFConfig, log *zap.Logger) PDFRenderer {
	if !cfg.Enabled {
		return disabledRenderer{}
	}
	return NewChromeRenderer(cfg, log)
}

type disabledRenderer struct{}

func (disabledRenderer) Render(context.Context, string) ([]byte, error) {
	return nil, ErrPDFDisabled
}

// ChromeRenderer prints pages through chromedp. The allocator is created
// lazily per render so an idle server holds no browser process.
type ChromeRenderer struct {
	cfg    config.PDFConfig
	logger *zap.Logger
}

func NewChromeRenderer(cfg config.PDFConfig, log *zap.Logger) *ChromeRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRenderTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChromeRenderer{cfg: cfg, logger: log}
}

func (r *ChromeRenderer) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(ctx, r.cfg.RemoteURL)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if r.cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return chromedp.NewExecAllocator(ctx, opts...)
}

func (r *ChromeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, errors.New("html content is empty")
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	allocCtx, allocCancel := r.allocator(ctx)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			r.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer browserCancel()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("pdf rendering timed out after %v: %w", r.cfg.Timeout, err)
		}
		r.logger.Error("chromedp rendering failed", zap.Error(err))
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	if len(pdf) == 0 {
		return nil, errors.New("generated pdf is empty")
	}

	r.logger.Info("PDF rendered", zap.Int("bytes", len(pdf)), zap.Duration("duration", time.Since(start)))
	return pdf, nil
}
