package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

// Streamer drives one single-provider streaming invocation per spec.md
// §4.7 step 5, mirroring Caller's SDK-path-first dispatch.
type Streamer struct {
	HTTPClient *http.Client
	Logger     telemetry.Logger
}

func NewStreamer(logger telemetry.Logger) *Streamer {
	return &Streamer{HTTPClient: &http.Client{}, Logger: logger}
}

// Stream opens a ChunkIterator: the Compat's SDK streaming path when
// available, else an HTTP SSE connection parsed line-by-line via
// Compat.ParseStreamChunk.
func (s *Streamer) Stream(ctx context.Context, p CallParams) (ChunkIterator, error) {
	if sdkCompat, ok := p.Compat.(StreamSDKCompat); ok {
		it, err := sdkCompat.StreamSDK(ctx, p.Model, p.Settings, p.Messages, p.Tools, p.Choice)
		if err != nil {
			return nil, errkit.ClassifyProviderError(err, p.Manifest.ID, p.Manifest.RetryWords)
		}
		return it, nil
	}

	payload, err := p.Compat.BuildPayload(p.Model, p.Settings, p.Messages, p.Tools, p.Choice)
	if err != nil {
		return nil, &errkit.ProviderPayloadError{Provider: p.Manifest.ID, Message: err.Error()}
	}
	for k, v := range p.Compat.GetStreamingFlags() {
		payload[k] = v
	}

	payload, err = applyExtensions(p.Compat, payload, p.Manifest.PayloadExtensions, p.Extras)
	if err != nil {
		return nil, &errkit.ProviderPayloadError{Provider: p.Manifest.ID, Message: err.Error()}
	}

	url := strings.ReplaceAll(p.Manifest.StreamingURLTemplate, "{model}", p.Model)
	if url == "" {
		url = strings.ReplaceAll(p.Manifest.EndpointURLTemplate, "{model}", p.Model)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &errkit.ProviderPayloadError{Provider: p.Manifest.ID, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	headers := p.Manifest.StreamingHeaders
	if headers == nil {
		headers = p.Manifest.Headers
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, &errkit.ProviderExecutionError{Provider: p.Manifest.ID, Cause: err}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, &errkit.ProviderExecutionError{
			Provider:    p.Manifest.ID,
			StatusCode:  resp.StatusCode,
			IsRateLimit: isRateLimitResponse(resp, nil, p.Manifest.RetryWords),
		}
	}

	return &sseIterator{
		scanner: bufio.NewScanner(resp.Body),
		closer:  resp.Body,
		compat:  p.Compat,
		logger:  s.Logger,
	}, nil
}

// sseIterator adapts a "data: <chunk>\n\n" SSE body into a ChunkIterator,
// delegating per-event parsing to the Compat (each vendor's event shape
// differs; the loop here only knows about SSE framing).
type sseIterator struct {
	scanner *bufio.Scanner
	closer  interface{ Close() error }
	compat  Compat
	logger  telemetry.Logger
}

func (it *sseIterator) Next() (model.ParsedChunk, bool, error) {
	for it.scanner.Scan() {
		line := it.scanner.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			data, ok = strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return model.ParsedChunk{}, true, nil
		}
		chunk, err := it.compat.ParseStreamChunk([]byte(data))
		if err != nil {
			return model.ParsedChunk{}, false, err
		}
		return chunk, false, nil
	}
	if err := it.scanner.Err(); err != nil {
		return model.ParsedChunk{}, false, err
	}
	return model.ParsedChunk{}, true, nil
}

func (it *sseIterator) Close() error {
	return it.closer.Close()
}
