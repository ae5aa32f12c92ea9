// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sources resolves each manifest.SourceKind to a concrete,
// fetchable location, every HTTP-speaking resolver sharing one
// timeout-bounded *http.Client.
package sources

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// Resolution is what a source resolver hands back: either a direct
// stream to copy from Body, or (for Manual sources) a Prompt the
// caller must fail with instead of downloading anything.
type Resolution struct {
	Body   io.ReadCloser
	Prompt string
}

// Resolver fetches the bytes a manifest.Source names.
type Resolver interface {
	Resolve(ctx context.Context, src manifest.Source, expectedSize int64) (*Resolution, error)
}

// Config carries the installation-wide settings source resolvers
// need.
type Config struct {
	NexusAPIKey       string
	GameRootDirectory map[string]string
	GameVersion       map[string]string
	HTTPTimeout       time.Duration
}

// NewHTTPClient builds the shared client every HTTP-speaking resolver
// in this package uses, timeout-bounded the way jackett.Client is.
// CDN mirrors serve many small numbered parts per archive; http2
// lets those parts share one connection instead of
// opening a new one per part.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{}
	if err := http2.ConfigureTransport(transport); err != nil {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Registry dispatches a manifest.Source to its Resolver by SourceKind.
type Registry struct {
	byKind map[manifest.SourceKind]Resolver
}

func NewRegistry(cfg Config) *Registry {
	client := NewHTTPClient(cfg.HTTPTimeout)
	return &Registry{byKind: map[manifest.SourceKind]Resolver{
		manifest.SourceHTTP:        &HTTPResolver{Client: client},
		manifest.SourceCDN:         &CDNResolver{Client: client},
		manifest.SourceNexus:       &NexusResolver{Client: client, APIKey: cfg.NexusAPIKey},
		manifest.SourceGoogleDrive: &GoogleDriveResolver{Client: client},
		manifest.SourceMediaFire:   &MediaFireResolver{Client: client},
		manifest.SourceManual:      &ManualResolver{},
		manifest.SourceGameFile:    &GameFileResolver{RootByGame: cfg.GameRootDirectory, VersionByGame: cfg.GameVersion},
		manifest.SourceHTTPMirror:  &HTTPMirrorResolver{Client: client},
	}}
}

func (r *Registry) Resolve(ctx context.Context, src manifest.Source, expectedSize int64) (*Resolution, error) {
	resolver, ok := r.byKind[src.Kind]
	if !ok {
		return nil, unsupportedSourceError(src.Kind)
	}
	return resolver.Resolve(ctx, src, expectedSize)
}
