package fetcher

import (
	"archive/zip"
	"bytes"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ArchiveSeparator joins an archive path and an entry name in a source
// reference, as in "provas.zip!/USP_2023.pdf".
const ArchiveSeparator = "!/"

// IsArchive reports whether name is a zip bundle.
func IsArchive(name string) bool {
	return strings.EqualFold(path.Ext(name), ".zip")
}

// SplitArchiveRef splits "bundle.zip!/entry" into its archive and entry.
// ok is false for a plain path.
func SplitArchiveRef(ref string) (archive, entry string, ok bool) {
	archive, entry, ok = strings.Cut(ref, ArchiveSeparator)
	if !ok || !IsArchive(archive) || entry == "" {
		return ref, "", false
	}
	return archive, entry, true
}

// ReadArchive returns the entries of a zip bundle that keep accepts, sorted
// by name. Directories, hidden files and entries escaping the archive root
// are skipped. Each entry is capped at maxBytes when maxBytes > 0.
func ReadArchive(data []byte, keep func(name string) bool, maxBytes int64) ([]Document, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, eris.Wrap(err, "fetcher: open zip")
	}

	var docs []Document
	for _, f := range r.File {
		if !acceptEntry(f, keep) {
			continue
		}
		content, err := readEntry(f, maxBytes)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read zip entry %s", f.Name)
		}
		docs = append(docs, Document{Name: f.Name, Data: content})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// ReadArchiveEntry returns one named entry of a zip bundle.
func ReadArchiveEntry(data []byte, name string, maxBytes int64) (*Document, error) {
	docs, err := ReadArchive(data, func(n string) bool { return n == name }, maxBytes)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, eris.Errorf("fetcher: %q not found in archive", name)
	}
	return &docs[0], nil
}

func acceptEntry(f *zip.File, keep func(string) bool) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	clean := path.Clean(f.Name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	for _, part := range strings.Split(clean, "/") {
		if strings.HasPrefix(part, ".") || part == "__MACOSX" {
			return false
		}
	}
	return keep == nil || keep(f.Name)
}

func readEntry(f *zip.File, maxBytes int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	return readLimited(rc, maxBytes)
}
