package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "image/jpeg"

	"golang.org/x/image/draw"

	"github.com/mathscrap/mathscrap-backend/internal/clients/mathpix"
	"github.com/mathscrap/mathscrap-backend/internal/clients/tesseract"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

// OcrService extracts a LaTeX candidate from image bytes. Local recognition
// runs first; Mathpix takes over when the local pass fails, comes back empty,
// or lands below the confidence threshold.
type OcrService interface {
	Extract(ctx context.Context, image []byte, contentType string) (types.OcrResult, error)
}

type ocrService struct {
	log       *logger.Logger
	local     tesseract.Recognizer
	remote    mathpix.Client // nil when Mathpix credentials are absent
	threshold float64
}

func NewOcrService(log *logger.Logger, local tesseract.Recognizer, remote mathpix.Client, threshold float64) (OcrService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if local == nil {
		return nil, fmt.Errorf("local recognizer required")
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	return &ocrService{
		log:       log.With("service", "OcrService"),
		local:     local,
		remote:    remote,
		threshold: threshold,
	}, nil
}

func (s *ocrService) Extract(ctx context.Context, img []byte, contentType string) (types.OcrResult, error) {
	var out types.OcrResult
	if len(img) == 0 {
		return out, fmt.Errorf("image data required")
	}

	prepared := preprocess(img)

	local, localErr := s.local.Recognize(ctx, prepared)
	if localErr == nil {
		out = types.OcrResult{
			Latex:      mathCandidate(local.Text),
			Text:       local.Text,
			Confidence: local.Confidence,
			Source:     types.OcrSourceLocal,
		}
	}

	needRemote := localErr != nil || out.Latex == "" || out.Confidence < s.threshold
	if !needRemote || s.remote == nil {
		if localErr != nil {
			return out, fmt.Errorf("local ocr: %w", localErr)
		}
		if out.Latex == "" {
			return out, fmt.Errorf("no mathematical content recognized")
		}
		return out, nil
	}

	if localErr != nil {
		s.log.Warn("Local OCR failed; trying Mathpix", "error", localErr.Error())
	} else {
		s.log.Debug("Local OCR below threshold; trying Mathpix",
			"confidence", out.Confidence,
			"threshold", s.threshold,
		)
	}

	remote, remoteErr := s.remote.Recognize(ctx, img, contentType)
	if remoteErr != nil {
		// Keep the local result when it at least produced something.
		if localErr == nil && out.Latex != "" {
			s.log.Warn("Mathpix failed; keeping local result", "error", remoteErr.Error())
			return out, nil
		}
		return out, fmt.Errorf("mathpix ocr: %w", remoteErr)
	}

	latex := remote.Latex
	if latex == "" {
		latex = mathCandidate(remote.Text)
	}
	if latex == "" {
		if localErr == nil && out.Latex != "" {
			return out, nil
		}
		return out, fmt.Errorf("no mathematical content recognized")
	}
	return types.OcrResult{
		Latex:      latex,
		Text:       remote.Text,
		Confidence: remote.Confidence,
		Source:     types.OcrSourceMathpix,
	}, nil
}

// preprocess decodes, grayscales, and doubles the image before recognition.
// Handwritten photos are usually low contrast at phone resolution; the
// upscale alone noticeably improves tesseract output. Undecodable bytes pass
// through untouched and the recognizer reports its own error.
func preprocess(data []byte) []byte {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	b := src.Bounds()

	gray := image.NewGray(b)
	draw.Draw(gray, b, src, b.Min, draw.Src)

	scaled := image.NewGray(image.Rect(0, 0, b.Dx()*2, b.Dy()*2))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return data
	}
	return buf.Bytes()
}

// mathCandidate picks the densest math-looking line out of multi-line OCR
// text. Tesseract reads the whole photo; handwritten work often has stray
// marks and page headers around the expression itself.
func mathCandidate(text string) string {
	best := ""
	bestDensity := -1.0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		score := 0
		for _, r := range line {
			switch {
			case r >= '0' && r <= '9':
				score += 2
			case strings.ContainsRune("+-*/^=()", r):
				score += 3
			case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
				score++
			}
		}
		// Density, not raw score: a prose header outweighs a short
		// expression on character count alone.
		density := float64(score) / float64(len(line))
		if density > bestDensity {
			bestDensity = density
			best = line
		}
	}
	return strings.Join(strings.Fields(best), " ")
}
