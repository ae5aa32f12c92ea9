// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

func unsupportedSourceError(kind manifest.SourceKind) error {
	return errors.Errorf("no resolver registered for download source %q", kind)
}

// HTTPResolver serves manifest.SourceHTTP: the URL is used verbatim.
type HTTPResolver struct {
	Client *http.Client
}

func (h *HTTPResolver) Resolve(ctx context.Context, src manifest.Source, _ int64) (*Resolution, error) {
	return fetch(ctx, h.Client, src.URL, src.Headers)
}

func fetch(ctx context.Context, client *http.Client, url string, headers []string) (*Resolution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", url)
	}
	applyHeaders(req, headers)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", url)
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, errors.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}
	return &Resolution{Body: resp.Body}, nil
}

// applyHeaders parses the manifest's "Name: Value" header strings
// (the original schema stores extra download headers as flat lines).
func applyHeaders(req *http.Request, headers []string) {
	for _, h := range headers {
		for i := 0; i < len(h); i++ {
			if h[i] == ':' {
				name := h[:i]
				value := h[i+1:]
				for len(value) > 0 && value[0] == ' ' {
					value = value[1:]
				}
				req.Header.Set(name, value)
				break
			}
		}
	}
}

// HTTPMirrorResolver serves manifest.SourceHTTPMirror: try each URL in
// order, first 2xx wins.
type HTTPMirrorResolver struct {
	Client *http.Client
}

func (h *HTTPMirrorResolver) Resolve(ctx context.Context, src manifest.Source, _ int64) (*Resolution, error) {
	var lastErr error
	for _, url := range src.MirrorURLs {
		resolution, err := fetch(ctx, h.Client, url, nil)
		if err == nil {
			return resolution, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no mirror URLs configured")
	}
	return nil, errors.Wrap(lastErr, "all mirrors failed")
}

// ManualResolver serves manifest.SourceManual: it never downloads
// anything, it fails with the stored prompt.
type ManualResolver struct{}

func (m *ManualResolver) Resolve(_ context.Context, src manifest.Source, _ int64) (*Resolution, error) {
	return &Resolution{Prompt: src.Prompt}, errors.Errorf("manual download required: %s", src.Prompt)
}
