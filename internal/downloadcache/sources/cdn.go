// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// cdnIndexFilename is the magic filename the Wabbajack CDN exposes a
// gzip-compressed JSON part index under.
const cdnIndexFilename = "definition.json.gz"

type cdnPart struct {
	Hash   string `json:"Hash"`
	Index  int    `json:"Index"`
	Offset int64  `json:"Offset"`
	Size   int64  `json:"Size"`
}

type cdnDefinition struct {
	Author           string    `json:"Author"`
	Hash             string    `json:"Hash"`
	MungedName       string    `json:"MungedName"`
	OriginalFileName string    `json:"OriginalFileName"`
	Size             int64     `json:"Size"`
	Parts            []cdnPart `json:"Parts"`
}

// CDNResolver serves manifest.SourceCDN: fetch the gzip-compressed
// part index, then concatenate each part URL's bytes in order.
type CDNResolver struct {
	Client *http.Client
}

func (c *CDNResolver) Resolve(ctx context.Context, src manifest.Source, expectedSize int64) (*Resolution, error) {
	base := strings.TrimRight(RemapCDNHost(src.URL), "/")
	indexURL := base + "/" + cdnIndexFilename

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", indexURL)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching CDN index %s", indexURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("fetching CDN index %s: unexpected status %s", indexURL, resp.Status)
	}

	gz, err := pgzip.NewReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "gzip-decoding CDN index")
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrap(err, "reading CDN index body")
	}

	def, err := parseCDNDefinition(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing CDN index")
	}

	return &Resolution{Body: &cdnPartsReader{ctx: ctx, client: c.Client, base: base, def: def}}, nil
}

// parseCDNDefinition tolerates leading non-JSON garbage by skipping to
// the first '{'.
func parseCDNDefinition(raw []byte) (*cdnDefinition, error) {
	idx := bytes.IndexByte(raw, '{')
	if idx < 0 {
		return nil, errors.New("no JSON object found in CDN index")
	}
	var def cdnDefinition
	if err := json.Unmarshal(raw[idx:], &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// cdnPartsReader streams each part file in index order, lazily
// fetching the next part once the previous one is exhausted, so the
// CDN source looks like one continuous io.ReadCloser to callers.
type cdnPartsReader struct {
	ctx    context.Context
	client *http.Client
	base   string
	def    *cdnDefinition
	index  int
	cur    io.ReadCloser
}

func (p *cdnPartsReader) Read(buf []byte) (int, error) {
	for {
		if p.cur == nil {
			if p.index >= len(p.def.Parts) {
				return 0, io.EOF
			}
			part := p.def.Parts[p.index]
			url := fmt.Sprintf("%s/%s/parts/%d", p.base, p.def.MungedName, part.Index)
			req, err := http.NewRequestWithContext(p.ctx, http.MethodGet, url, nil)
			if err != nil {
				return 0, errors.Wrapf(err, "building request for CDN part %s", url)
			}
			resp, err := p.client.Do(req)
			if err != nil {
				return 0, errors.Wrapf(err, "fetching CDN part %s", url)
			}
			if resp.StatusCode/100 != 2 {
				resp.Body.Close()
				return 0, errors.Errorf("fetching CDN part %s: unexpected status %s", url, resp.Status)
			}
			p.cur = resp.Body
			p.index++
		}
		n, err := p.cur.Read(buf)
		if err == io.EOF {
			p.cur.Close()
			p.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (p *cdnPartsReader) Close() error {
	if p.cur != nil {
		return p.cur.Close()
	}
	return nil
}

// RemapCDNHost rewrites the legacy Bunny CDN hostnames the original
// schema's URLs still carry to their current equivalents.
func RemapCDNHost(url string) string {
	replacements := [][2]string{
		{"wabbajack.b-cdn.net", "authored-files.wabbajack.org"},
		{"wabbajack-mirror.b-cdn.net", "mirror.wabbajack.org"},
		{"wabbajack-patches.b-cdn.net", "patches.wabbajack.org"},
		{"wabbajacktest.b-cdn.net", "test-files.wabbajack.org"},
	}
	for _, r := range replacements {
		url = strings.ReplaceAll(url, r[0], r[1])
	}
	return url
}
