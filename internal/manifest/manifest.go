// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package manifest decodes the distribution manifest JSON
// into the installer's data model: archive descriptors, download
// sources, and the six directive kinds. Field names mirror the
// PascalCase `$type`-tagged JSON the Wabbajack toolchain emits.
package manifest

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hoolamike-go/hoolamike/internal/hashing"
)

// Manifest is the top-level modlist document.
type Manifest struct {
	Archives     []Archive   `json:"Archives"`
	Author       string      `json:"Author"`
	Description  string      `json:"Description"`
	Directives   []Directive `json:"Directives"`
	GameType     string      `json:"GameType"`
	Image        string      `json:"Image"`
	IsNSFW       bool        `json:"IsNSFW"`
	Name         string      `json:"Name"`
	Readme       string      `json:"Readme"`
	Version      string      `json:"Version"`
	WabbajackVer string      `json:"WabbajackVersion"`
	Website      string      `json:"Website"`
}

// ArchiveDescriptor is the declared identity of one downloadable.
type ArchiveDescriptor struct {
	Hash hashing.H
	Meta string `json:"Meta"`
	Name string `json:"Name"`
	Size int64  `json:"Size"`
}

// UnmarshalJSON decodes Hash from its base64 manifest rendering.
func (d *ArchiveDescriptor) UnmarshalJSON(b []byte) error {
	var raw struct {
		Hash string `json:"Hash"`
		Meta string `json:"Meta"`
		Name string `json:"Name"`
		Size int64  `json:"Size"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	h, err := hashing.Decode(raw.Hash)
	if err != nil {
		return errors.Wrapf(err, "archive %q has malformed hash", raw.Name)
	}
	d.Hash, d.Meta, d.Name, d.Size = h, raw.Meta, raw.Name, raw.Size
	return nil
}

// MarshalJSON renders Hash back to its base64 manifest form.
func (d ArchiveDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Hash string `json:"Hash"`
		Meta string `json:"Meta"`
		Name string `json:"Name"`
		Size int64  `json:"Size"`
	}{hashing.Encode(d.Hash), d.Meta, d.Name, d.Size})
}

// Archive pairs a descriptor with its download source state.
type Archive struct {
	ArchiveDescriptor
	State Source `json:"State"`
}

// UnmarshalJSON flattens ArchiveDescriptor's fields alongside State,
// matching the original schema's #[serde(flatten)] on descriptor.
func (a *Archive) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &a.ArchiveDescriptor); err != nil {
		return err
	}
	var wrapper struct {
		State Source `json:"State"`
	}
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return err
	}
	a.State = wrapper.State
	return nil
}
