// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package archivefmt provides one uniform list/extract surface over
// the archive containers the installer encounters: general
// purpose zip/7z/rar, handled through mholt/archives (which in turn
// backs onto bodgit/sevenzip and nwaples/rardecode/v2 for the latter
// two formats), and the two game-specific container formats, BSA and
// BA2, which this package reads and writes itself.
package archivefmt

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// Kind identifies which codec owns an archive file.
type Kind int

const (
	KindUnknown Kind = iota
	KindZip
	KindSevenZip
	KindRar
	KindBSA
	KindBA2
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindSevenZip:
		return "7z"
	case KindRar:
		return "rar"
	case KindBSA:
		return "bsa"
	case KindBA2:
		return "ba2"
	default:
		return "unknown"
	}
}

var magics = []struct {
	kind   Kind
	offset int
	bytes  []byte
}{
	{KindZip, 0, []byte("PK\x03\x04")},
	{KindZip, 0, []byte("PK\x05\x06")}, // empty zip
	{KindSevenZip, 0, []byte("7z\xBC\xAF\x27\x1C")},
	{KindRar, 0, []byte("Rar!\x1A\x07")},
	{KindBSA, 0, []byte("BSA\x00")},
	{KindBA2, 0, []byte("BTDX")},
}

// maxMagicLen is the longest prefix Detect needs to peek at.
const maxMagicLen = 8

// Detect sniffs an archive's format from its leading bytes; content
// wins over the file's extension.
func Detect(r io.Reader) (Kind, error) {
	br := bufio.NewReaderSize(r, maxMagicLen)
	head, err := br.Peek(maxMagicLen)
	if err != nil && err != io.EOF {
		return KindUnknown, errors.Wrap(err, "peeking archive header")
	}
	for _, m := range magics {
		end := m.offset + len(m.bytes)
		if end > len(head) {
			continue
		}
		if string(head[m.offset:end]) == string(m.bytes) {
			return m.kind, nil
		}
	}
	return KindUnknown, nil
}

// DetectFile calls open and sniffs the stream's format, grounded on the same
// "trust content not extension" rule as Detect.
func DetectFile(open func() (io.ReadCloser, error)) (Kind, error) {
	rc, err := open()
	if err != nil {
		return KindUnknown, errors.Wrap(err, "opening archive for format detection")
	}
	defer rc.Close()
	return Detect(rc)
}
