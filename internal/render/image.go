package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/tillbridge/tillbridge/internal/escpos"
)

// RenderImage is the render mode value that selects the headless-Chrome path.
const RenderImage = "image"

// receiptTemplate is the HTML used for image-mode receipts. Kept narrow and
// monochrome so the 1-bit raster conversion stays legible.
const receiptTemplate = `<!DOCTYPE html>
<html><head><style>
body { width: {{.WidthPx}}px; margin: 0; font-family: monospace; font-size: 14px; color: #000; background: #fff; }
h1 { font-size: 18px; text-align: center; margin: 4px 0; }
.row { display: flex; justify-content: space-between; }
.total { font-weight: bold; font-size: 16px; border-top: 1px dashed #000; margin-top: 4px; padding-top: 4px; }
.center { text-align: center; }
</style></head><body>
<h1>{{.Business}}</h1>
{{if .ReceiptID}}<div>Ticket: {{.ReceiptID}}</div>{{end}}
<div>{{.Date}}</div>
<hr>
{{range .Items}}<div class="row"><span>{{.Qty}}x {{.Name}}</span><span>{{.Total}}</span></div>
{{end}}
<div class="row total"><span>TOTAL</span><span>{{.Total}}</span></div>
{{if .Footer}}<div class="center">{{.Footer}}</div>{{end}}
</body></html>`

type imageItem struct {
	Qty   int
	Name  string
	Total string
}

type imageReceipt struct {
	WidthPx   int
	Business  string
	ReceiptID string
	Date      string
	Items     []imageItem
	Total     string
	Footer    string
}

// ImageRenderer renders receipts by templating HTML, screenshotting it in
// headless Chrome and converting the capture to an ESC/POS raster.
type ImageRenderer struct {
	chromePath string
	tmpl       *template.Template
	log        zerolog.Logger
}

// NewImageRenderer builds an image renderer using the given Chrome binary.
// chromePath may be empty when the browser is on PATH.
func NewImageRenderer(chromePath string, log zerolog.Logger) *ImageRenderer {
	return &ImageRenderer{
		chromePath: chromePath,
		tmpl:       template.Must(template.New("receipt").Parse(receiptTemplate)),
		log:        log.With().Str("component", "render.image").Logger(),
	}
}

// Render produces the ESC/POS stream for one receipt payload. columns decides
// the dot width: 32 columns maps to the standard 384-dot head, 48 to 576.
func (r *ImageRenderer) Render(ctx context.Context, data Payload, columns int) ([]byte, error) {
	dots := 384
	if columns >= 48 {
		dots = 576
	}

	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, r.receiptData(data, dots)); err != nil {
		return nil, fmt.Errorf("executing receipt template: %w", err)
	}

	pngBytes, err := r.capture(ctx, htmlBuf.String())
	if err != nil {
		return nil, fmt.Errorf("capturing receipt image: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("decoding captured PNG: %w", err)
	}
	img = resizeToWidth(img, dots)

	d := escpos.NewDocument(columns)
	d.Raster(img)
	d.Cut()
	return d.Bytes(), nil
}

func (r *ImageRenderer) receiptData(data Payload, dots int) imageReceipt {
	out := imageReceipt{
		WidthPx:   dots,
		Business:  data.Str("business_name"),
		ReceiptID: data.Str("receipt_id"),
		Date:      time.Now().Format("02/01/2006 15:04"),
		Footer:    data.Str("receipt_footer"),
	}
	if out.Business == "" {
		out.Business = "Receipt"
	}
	for _, item := range data.Items("items") {
		qty, _ := item.Num("quantity")
		if qty == 0 {
			qty = 1
		}
		total, _ := item.Num("total")
		out.Items = append(out.Items, imageItem{
			Qty:   int(qty),
			Name:  item.Str("name"),
			Total: Money(total),
		})
	}
	total, _ := data.Num("total")
	out.Total = Money(total)
	return out
}

func (r *ImageRenderer) capture(ctx context.Context, html string) ([]byte, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	cdpCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var pngBytes []byte
	err := chromedp.Run(cdpCtx,
		chromedp.Navigate("data:text/html,"+urlEncode(html)),
		// Let the page settle before the screenshot.
		chromedp.Sleep(300*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, err := page.CaptureScreenshot().
				WithCaptureBeyondViewport(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pngBytes = buf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pngBytes, nil
}

func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// resizeToWidth scales src to the target dot width with nearest-neighbour
// sampling. Thermal rasters are thresholded afterwards, so sampling quality
// is irrelevant.
func resizeToWidth(src image.Image, targetWidth int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w == targetWidth || w == 0 {
		return src
	}

	scale := float64(targetWidth) / float64(w)
	newHeight := int(float64(h) * scale)
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, newHeight))

	for y := 0; y < newHeight; y++ {
		for x := 0; x < targetWidth; x++ {
			sx := bounds.Min.X + int(float64(x)/scale)
			sy := bounds.Min.Y + int(float64(y)/scale)
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
