package mathpix

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mathscrap/mathscrap-backend/internal/httpx"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
)

// Result is the recognition output for a single image.
type Result struct {
	Latex      string
	Text       string
	Confidence float64
}

// Client is the Mathpix OCR API client.
type Client interface {
	Recognize(ctx context.Context, image []byte, contentType string) (Result, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	appID      string
	appKey     string
	httpClient *http.Client
	maxRetries int
}

// NewClient reads MATHPIX_APP_ID and MATHPIX_APP_KEY from the environment.
// Both are required; construction fails without them so the caller can decide
// whether remote OCR is available at all.
func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	appID := strings.TrimSpace(os.Getenv("MATHPIX_APP_ID"))
	appKey := strings.TrimSpace(os.Getenv("MATHPIX_APP_KEY"))
	if appID == "" || appKey == "" {
		return nil, fmt.Errorf("missing MATHPIX_APP_ID or MATHPIX_APP_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("MATHPIX_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.mathpix.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeoutSec := 30
	if v := os.Getenv("MATHPIX_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 2
	if v := os.Getenv("MATHPIX_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &client{
		log:        log.With("service", "MathpixClient"),
		baseURL:    baseURL,
		appID:      appID,
		appKey:     appKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type mathpixHTTPError struct {
	StatusCode int
	Body       string
}

func (e *mathpixHTTPError) Error() string {
	return fmt.Sprintf("mathpix http %d: %s", e.StatusCode, e.Body)
}

func (e *mathpixHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type textRequest struct {
	Src     string   `json:"src"`
	Formats []string `json:"formats"`
}

type textResponse struct {
	LatexStyled     string  `json:"latex_styled"`
	Text            string  `json:"text"`
	LatexConfidence float64 `json:"latex_confidence"`
	Confidence      float64 `json:"confidence"`
	Error           string  `json:"error"`
}

func (c *client) Recognize(ctx context.Context, image []byte, contentType string) (Result, error) {
	var out Result
	if len(image) == 0 {
		return out, fmt.Errorf("image data required")
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = "image/png"
	}

	req := textRequest{
		Src:     "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image),
		Formats: []string{"latex_styled", "text"},
	}

	var resp textResponse
	if err := c.do(ctx, "POST", "/v3/text", req, &resp); err != nil {
		return out, err
	}
	if strings.TrimSpace(resp.Error) != "" {
		return out, fmt.Errorf("mathpix: %s", resp.Error)
	}

	out.Latex = strings.TrimSpace(resp.LatexStyled)
	out.Text = strings.TrimSpace(resp.Text)
	out.Confidence = resp.LatexConfidence
	if out.Confidence == 0 {
		out.Confidence = resp.Confidence
	}
	if out.Latex == "" && out.Text == "" {
		return out, fmt.Errorf("mathpix: empty recognition result")
	}
	return out, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("app_id", c.appID)
	req.Header.Set("app_key", c.appKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &mathpixHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("mathpix decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Mathpix request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
