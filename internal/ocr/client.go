package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"exteroid/internal"
	"exteroid/internal/config"
)

const releaseTimeout = 10 * time.Second

// HTTPEngine talks to a remote OCR service that keeps one worker per
// recognition session.
type HTTPEngine struct {
	baseURL      string
	token        string
	lang         string
	httpClient   *http.Client
	limiter      *Throttle
	maxTries     uint
	retryInitial time.Duration
}

type workerResponse struct {
	ID string `json:"id"`
}

type bbox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

type recognizeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		BBox       bbox    `json:"bbox"`
	} `json:"words"`
}

func NewHTTPEngine(cfg config.Config) *HTTPEngine {
	return &HTTPEngine{
		baseURL:      strings.TrimRight(cfg.OCRAPIBaseURL, "/") + "/",
		token:        cfg.OCRAPIToken,
		lang:         cfg.OCRLang,
		httpClient:   &http.Client{Timeout: time.Duration(cfg.OCRTimeoutMs) * time.Millisecond},
		limiter:      NewThrottle(cfg.OCRRateLimitRPS),
		maxTries:     5,
		retryInitial: 250 * time.Millisecond,
	}
}

func (e *HTTPEngine) Acquire(ctx context.Context) (Worker, error) {
	body, _ := json.Marshal(map[string]string{"lang": e.lang})
	data, err := e.do(ctx, http.MethodPost, "workers", body, "application/json")
	if err != nil {
		return nil, err
	}
	var resp workerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, errors.New("ocr api returned no worker id")
	}
	return &httpWorker{engine: e, id: resp.ID}, nil
}

type httpWorker struct {
	engine *HTTPEngine
	id     string
}

func (w *httpWorker) Recognize(ctx context.Context, image []byte) (internal.Recognition, error) {
	data, err := w.engine.do(ctx, http.MethodPost, "workers/"+url.PathEscape(w.id)+"/recognize", image, "application/octet-stream")
	if err != nil {
		return internal.Recognition{}, err
	}
	var resp recognizeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return internal.Recognition{}, err
	}
	rec := internal.Recognition{Text: resp.Text, Confidence: resp.Confidence}
	for _, word := range resp.Words {
		rec.Tokens = append(rec.Tokens, internal.TextToken{
			Text:       word.Text,
			X:          word.BBox.X0,
			Y:          word.BBox.Y0,
			Width:      word.BBox.X1 - word.BBox.X0,
			Height:     word.BBox.Y1 - word.BBox.Y0,
			Confidence: word.Confidence,
		})
	}
	return rec, nil
}

// Release runs on its own deadline so an expired recognition still frees the
// remote worker.
func (w *httpWorker) Release() error {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	_, err := w.engine.do(ctx, http.MethodDelete, "workers/"+url.PathEscape(w.id), nil, "")
	return err
}

func (e *HTTPEngine) do(ctx context.Context, method, endpoint string, body []byte, contentType string) ([]byte, error) {
	if strings.TrimSpace(e.token) == "" {
		return nil, errors.New("missing OCR_API_TOKEN")
	}
	u, err := url.Parse(e.baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	op := func() ([]byte, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+e.token)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := fmt.Errorf("ocr api error: status=%d body=%s", resp.StatusCode, string(data))
			if isRetryableStatus(resp.StatusCode) {
				return nil, statusErr
			}
			return nil, backoff.Permanent(statusErr)
		}
		return data, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInitial
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(e.maxTries))
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
