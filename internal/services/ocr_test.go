package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathscrap/mathscrap-backend/internal/clients/mathpix"
	"github.com/mathscrap/mathscrap-backend/internal/clients/tesseract"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

type fakeLocal struct {
	text       string
	confidence float64
	err        error
}

func (f *fakeLocal) Recognize(ctx context.Context, image []byte) (tesseract.Result, error) {
	if f.err != nil {
		return tesseract.Result{}, f.err
	}
	return tesseract.Result{Text: f.text, Confidence: f.confidence}, nil
}

type fakeMathpix struct {
	result mathpix.Result
	err    error
	calls  int
}

func (f *fakeMathpix) Recognize(ctx context.Context, image []byte, contentType string) (mathpix.Result, error) {
	f.calls++
	if f.err != nil {
		return mathpix.Result{}, f.err
	}
	return f.result, nil
}

func newOcr(t *testing.T, local tesseract.Recognizer, remote mathpix.Client) OcrService {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	svc, err := NewOcrService(log, local, remote, 0.6)
	require.NoError(t, err)
	return svc
}

func TestExtractLocalAboveThreshold(t *testing.T) {
	remote := &fakeMathpix{}
	svc := newOcr(t, &fakeLocal{text: "2x+3=7", confidence: 0.9}, remote)

	res, err := svc.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	require.Equal(t, types.OcrSourceLocal, res.Source)
	require.Equal(t, "2x+3=7", res.Latex)
	require.Zero(t, remote.calls, "mathpix must not be called when local is confident")
}

func TestExtractFallsBackOnLowConfidence(t *testing.T) {
	remote := &fakeMathpix{result: mathpix.Result{Latex: "x^2+1", Confidence: 0.95}}
	svc := newOcr(t, &fakeLocal{text: "x2 l", confidence: 0.2}, remote)

	res, err := svc.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	require.Equal(t, types.OcrSourceMathpix, res.Source)
	require.Equal(t, "x^2+1", res.Latex)
	require.Equal(t, 1, remote.calls)
}

func TestExtractFallsBackOnLocalFailure(t *testing.T) {
	remote := &fakeMathpix{result: mathpix.Result{Latex: "x^2+1", Confidence: 0.95}}
	svc := newOcr(t, &fakeLocal{err: fmt.Errorf("tesseract crashed")}, remote)

	res, err := svc.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	require.Equal(t, types.OcrSourceMathpix, res.Source)
}

func TestExtractKeepsLocalWhenRemoteFails(t *testing.T) {
	remote := &fakeMathpix{err: fmt.Errorf("mathpix down")}
	svc := newOcr(t, &fakeLocal{text: "2x+3=7", confidence: 0.3}, remote)

	res, err := svc.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	require.Equal(t, types.OcrSourceLocal, res.Source)
	require.Equal(t, "2x+3=7", res.Latex)
}

func TestExtractErrorsWhenBothFail(t *testing.T) {
	remote := &fakeMathpix{err: fmt.Errorf("mathpix down")}
	svc := newOcr(t, &fakeLocal{err: fmt.Errorf("tesseract crashed")}, remote)

	_, err := svc.Extract(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)
}

func TestExtractLocalOnlyWithoutRemote(t *testing.T) {
	svc := newOcr(t, &fakeLocal{text: "x+1", confidence: 0.1}, nil)

	res, err := svc.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	require.Equal(t, types.OcrSourceLocal, res.Source)
	require.Equal(t, "x+1", res.Latex)
}

func TestMathCandidatePicksDensestLine(t *testing.T) {
	text := "Homework page 3\n2x + 3 = 7\nname"
	require.Equal(t, "2x + 3 = 7", mathCandidate(text))
}
