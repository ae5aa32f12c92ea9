// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transform

import (
	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/manifest"
)

// Registry dispatches a directive to its executor by kind, the way
// internal/downloadcache/sources.Registry dispatches a Source by kind.
type Registry struct {
	byKind map[manifest.DirectiveKind]Executor
}

// NewRegistry wires every directive kind to its executor. staged backs
// CreateArchiveExecutor; pass nil if the install contains no CreateBSA
// directives.
func NewRegistry(staged StagedFileSource) *Registry {
	return &Registry{byKind: map[manifest.DirectiveKind]Executor{
		manifest.KindInlineFile:         InlineFileExecutor{},
		manifest.KindRemappedInlineFile: RemappedInlineFileExecutor{},
		manifest.KindFromArchive:        FromArchiveExecutor{},
		manifest.KindPatchedFromArchive: PatchedFromArchiveExecutor{},
		manifest.KindTransformedTexture: TransformedTextureExecutor{},
		manifest.KindCreateBSA:          CreateArchiveExecutor{Staged: staged},
	}}
}

// Execute looks up d.Kind's executor and runs it.
func (r *Registry) Execute(ctx *Context, d manifest.Directive) error {
	executor, ok := r.byKind[d.Kind]
	if !ok {
		return errors.Errorf("no executor registered for directive kind %q (%s)", d.Kind, d.Summary())
	}
	return errors.Wrap(executor.Execute(ctx, d), d.Summary())
}
