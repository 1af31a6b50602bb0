// Package render prints content previews to PDF with headless Chrome.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
)

// PDFRenderer prints HTML documents through a headless Chrome instance
type PDFRenderer struct {
	timeout time.Duration
	opts    []chromedp.ExecAllocatorOption
	log     *logger.Logger
}

// NewPDFRenderer creates a renderer. Each render starts its own browser.
func NewPDFRenderer(timeout time.Duration, log *logger.Logger) *PDFRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)
	return &PDFRenderer{timeout: timeout, opts: opts, log: log.Component("render")}
}

// PDF loads html into a blank tab and prints it as an A4 PDF
func (r *PDFRenderer) PDF(ctx context.Context, html string) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	tabCtx, cancel := context.WithTimeout(tabCtx, r.timeout)
	defer cancel()

	start := time.Now()
	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	r.log.WithField("bytes", len(pdf)).WithField("took", time.Since(start).Round(time.Millisecond)).Debug("Rendered PDF")
	return pdf, nil
}
