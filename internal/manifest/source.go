// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package manifest

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/hashing"
)

// SourceKind is the tag discriminating Source variants, matching the
// original schema's `$type` values.
type SourceKind string

const (
	SourceNexus       SourceKind = "NexusDownloader, Wabbajack.Lib"
	SourceGameFile    SourceKind = "GameFileSourceDownloader, Wabbajack.Lib"
	SourceGoogleDrive SourceKind = "GoogleDriveDownloader, Wabbajack.Lib"
	SourceHTTP        SourceKind = "HttpDownloader, Wabbajack.Lib"
	SourceManual      SourceKind = "ManualDownloader, Wabbajack.Lib"
	SourceCDN         SourceKind = "WabbajackCDNDownloader+State, Wabbajack.Lib"
	// SourceHTTPMirror extends the upstream schema with a
	// fall-through list of mirror URLs; manifests produced by
	// mirror-aware tooling tag it explicitly.
	SourceHTTPMirror SourceKind = "HttpMirrorDownloader, hoolamike-go"
	// SourceMediaFire names a MediaFire share-page download.
	SourceMediaFire SourceKind = "MediaFireDownloader, hoolamike-go"
)

// Source is the tagged union of download sources.
type Source struct {
	Kind SourceKind

	// Nexus fields.
	NexusGameName string
	NexusModID    int
	NexusFileID   int

	// GameFile fields.
	GameFileGame         string
	GameFileRelativePath string
	GameFileVersion      string
	GameFileHash         hashing.H

	// GoogleDrive fields.
	GoogleDriveID string

	// HTTP / CDN / MediaFire fields.
	URL     string
	Headers []string

	// Manual fields.
	Prompt string

	// HTTPMirror fields.
	MirrorURLs []string
}

// rawState mirrors the manifest's permissive "every field optional"
// State schema:
// every downloader's fields live side by side and each downloader
// reads only the ones it understands.
type rawState struct {
	Type string `json:"$type"`

	// Nexus
	GameName string `json:"GameName"`
	ModID    int    `json:"ModID"`
	FileID   int    `json:"FileID"`

	// GameFile / generic
	Game    string `json:"Game"`
	Hash    string `json:"Hash"`
	Version string `json:"Version"`

	// GoogleDrive
	ID string `json:"Id"`

	// HTTP / CDN / MediaFire
	URL     string   `json:"Url"`
	Headers []string `json:"Headers"`

	// Manual
	Prompt string `json:"Prompt"`

	// HTTPMirror
	URLs []string `json:"Urls"`

	// GameFile relative path is carried in Name per the original
	// schema's overloaded UnknownState.Name field.
	Name string `json:"Name"`
}

func (s *Source) UnmarshalJSON(b []byte) error {
	var raw rawState
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	s.Kind = SourceKind(raw.Type)
	switch s.Kind {
	case SourceNexus:
		s.NexusGameName, s.NexusModID, s.NexusFileID = raw.GameName, raw.ModID, raw.FileID
	case SourceGameFile:
		s.GameFileGame = raw.Game
		s.GameFileRelativePath = raw.Name
		s.GameFileVersion = raw.Version
		if raw.Hash != "" {
			h, err := hashing.Decode(raw.Hash)
			if err != nil {
				return errors.Wrap(err, "decoding GameFile source hash")
			}
			s.GameFileHash = h
		}
	case SourceGoogleDrive:
		s.GoogleDriveID = raw.ID
	case SourceHTTP, SourceCDN, SourceMediaFire:
		s.URL, s.Headers = raw.URL, raw.Headers
	case SourceManual:
		s.URL, s.Prompt = raw.URL, raw.Prompt
	case SourceHTTPMirror:
		s.MirrorURLs = raw.URLs
	default:
		return errors.Errorf("unrecognized download source $type %q", raw.Type)
	}
	return nil
}
