package tesseract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
)

// Result is the recognition output for a single image.
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer runs local OCR on image bytes.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Result, error)
}

type recognizer struct {
	log           *logger.Logger
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewRecognizer builds a Tesseract-backed recognizer. Languages come from
// TESSERACT_LANGUAGES (comma separated, default "eng"). A fresh gosseract
// client is created per call since the client is not safe for concurrent use.
func NewRecognizer(log *logger.Logger) (Recognizer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	langs := []string{"eng"}
	if v := strings.TrimSpace(os.Getenv("TESSERACT_LANGUAGES")); v != "" {
		langs = langs[:0]
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
	}
	return &recognizer{
		log:           log.With("service", "TesseractRecognizer"),
		languages:     langs,
		clientFactory: gosseract.NewClient,
	}, nil
}

func (r *recognizer) Recognize(ctx context.Context, image []byte) (Result, error) {
	var out Result
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if len(image) == 0 {
		return out, fmt.Errorf("image data required")
	}

	c := r.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return out, fmt.Errorf("set image: %w", err)
	}
	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return out, fmt.Errorf("set languages: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return out, fmt.Errorf("recognize text: %w", err)
	}
	out.Text = strings.TrimSpace(text)
	out.Confidence = meanWordConfidence(c)

	if out.Text == "" {
		return out, fmt.Errorf("empty recognition result")
	}
	return out, nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
