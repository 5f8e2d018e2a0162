package render

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tillbridge/tillbridge/internal/escpos"
	"github.com/tillbridge/tillbridge/internal/model"
)

// Engine routes print payloads to the text or image renderer. The image path
// needs headless Chrome; when it is absent the engine quietly renders text,
// so a print command never fails just because Chrome is not installed.
type Engine struct {
	version string
	image   *ImageRenderer
	log     zerolog.Logger
}

// NewEngine builds a render engine. image may be nil when Chrome is
// unavailable.
func NewEngine(version string, image *ImageRenderer, log zerolog.Logger) *Engine {
	return &Engine{
		version: version,
		image:   image,
		log:     log.With().Str("component", "render").Logger(),
	}
}

// Render produces the ESC/POS stream for one print job.
func (e *Engine) Render(ctx context.Context, docType model.DocumentType, data Payload, paperWidth int, mode string) ([]byte, error) {
	columns := escpos.ColumnsForPaperWidth(paperWidth)

	if mode == RenderImage {
		if e.image != nil {
			out, err := e.image.Render(ctx, data, columns)
			if err == nil {
				return out, nil
			}
			e.log.Warn().Err(err).Msg("image render failed, falling back to text")
		} else {
			e.log.Debug().Msg("image render requested but Chrome unavailable, using text")
		}
	}

	return Document(docType, data, columns), nil
}

// TestPage renders the connectivity test page.
func (e *Engine) TestPage(printerID string, paperWidth int) []byte {
	return TestPage(printerID, escpos.ColumnsForPaperWidth(paperWidth), e.version)
}
