// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

const nexusAPIBaseURL = "https://api.nexusmods.com"

// NexusResolver serves manifest.SourceNexus: GET a download-link endpoint authenticated by an apikey
// header, then follow the first URI it returns.
type NexusResolver struct {
	Client *http.Client
	APIKey string
}

func (n *NexusResolver) Resolve(ctx context.Context, src manifest.Source, _ int64) (*Resolution, error) {
	if n.APIKey == "" {
		return nil, errors.New("nexus download requires downloaders.nexus.api_key to be configured")
	}

	url := fmt.Sprintf("%s/v1/games/%s/mods/%d/files/%d/download_link.json",
		nexusAPIBaseURL, src.NexusGameName, src.NexusModID, src.NexusFileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", url)
	}
	req.Header.Set("apikey", n.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "requesting nexus download link from %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("requesting nexus download link from %s: unexpected status %s", url, resp.Status)
	}

	var links []struct {
		URI string `json:"URI"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&links); err != nil {
		return nil, errors.Wrap(err, "decoding nexus download link response")
	}
	if len(links) == 0 {
		return nil, errors.New("nexus download link response contained no URIs")
	}

	return fetch(ctx, n.Client, links[0].URI, nil)
}
