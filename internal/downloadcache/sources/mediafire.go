// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"io"
	"net/http"
	"regexp"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

const mediaFireUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var (
	mediaFireDownloadButton = regexp.MustCompile(`class="popsok"[^>]*aria-label='Download file'[^>]*href="([^"]+)"`)
	mediaFireLocationAssign = regexp.MustCompile(`window\.location\.href\s*=\s*'([^']+)'`)
)

// MediaFireResolver serves manifest.SourceMediaFire: fetch the share page with a realistic user agent and
// scrape the direct download link out of it.
type MediaFireResolver struct {
	Client *http.Client
}

func (m *MediaFireResolver) Resolve(ctx context.Context, src manifest.Source, _ int64) (*Resolution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", src.URL)
	}
	req.Header.Set("User-Agent", mediaFireUserAgent)

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching mediafire page %s", src.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("fetching mediafire page %s: unexpected status %s", src.URL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading mediafire page")
	}
	html := string(body)

	var directURL string
	if match := mediaFireDownloadButton.FindStringSubmatch(html); match != nil {
		directURL = match[1]
	} else if match := mediaFireLocationAssign.FindStringSubmatch(html); match != nil {
		directURL = match[1]
	} else {
		return nil, errors.Errorf("no download link found on mediafire page %s", src.URL)
	}

	return fetch(ctx, m.Client, directURL, nil)
}
