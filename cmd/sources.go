package main

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/answerkey"
	"github.com/sells-group/qbank-cli/internal/config"
	"github.com/sells-group/qbank-cli/internal/fetcher"
	"github.com/sells-group/qbank-cli/internal/model"
)

// sourceLoader resolves import references into sources. A reference is a
// local path, an http(s) or ftp URL, or an archive entry written as
// "bundle.zip!/entry.pdf". Zip bundles expand into one source per
// importable entry.
type sourceLoader struct {
	fetch    *fetcher.Router
	maxBytes int64
	asText   bool
}

func newSourceLoader(asText bool) *sourceLoader {
	var fc config.FetchConfig
	if cfg != nil {
		fc = cfg.Fetch
	}
	return &sourceLoader{
		fetch: fetcher.New(fetcher.Options{
			Timeout:           time.Duration(fc.TimeoutSecs) * time.Second,
			MaxRetries:        fc.MaxRetries,
			MaxBytes:          fc.MaxBytes,
			RequestsPerSecond: fc.RequestsPerSecond,
			UserAgent:         fc.UserAgent,
		}),
		maxBytes: fc.MaxBytes,
		asText:   asText,
	}
}

func (l *sourceLoader) loadAll(ctx context.Context, refs []string) ([]model.Source, error) {
	var sources []model.Source
	for _, ref := range refs {
		srcs, err := l.load(ctx, ref)
		if err != nil {
			return nil, err
		}
		sources = append(sources, srcs...)
	}
	return sources, nil
}

func (l *sourceLoader) load(ctx context.Context, ref string) ([]model.Source, error) {
	if archive, entry, ok := fetcher.SplitArchiveRef(ref); ok {
		data, _, err := l.read(ctx, archive)
		if err != nil {
			return nil, err
		}
		doc, err := fetcher.ReadArchiveEntry(data, entry, l.maxBytes)
		if err != nil {
			return nil, eris.Wrapf(err, "load %s", ref)
		}
		return []model.Source{l.source(path.Base(entry), ref, doc.Data)}, nil
	}

	data, name, err := l.read(ctx, ref)
	if err != nil {
		return nil, err
	}
	sources, err := l.fromBytes(name, ref, data)
	if err != nil {
		return nil, err
	}
	if len(sources) == 1 && !fetcher.IsRemote(ref) {
		attachSidecarKey(&sources[0], ref)
	}
	return sources, nil
}

// attachSidecarKey loads the answer sheet published next to a local
// document. A sheet that cannot be read is logged and ignored.
func attachSidecarKey(src *model.Source, docPath string) {
	keyPath := answerkey.Sidecar(docPath)
	if keyPath == "" {
		return
	}
	key, err := answerkey.Load(keyPath)
	if err != nil {
		zap.L().Warn("ignoring unreadable answer sheet", zap.String("sheet", keyPath), zap.Error(err))
		return
	}
	src.AnswerKey = key
	zap.L().Debug("answer sheet attached",
		zap.String("document", src.Filename),
		zap.String("sheet", keyPath),
		zap.Int("answers", len(key)),
	)
}

// fromBytes builds sources from a file's content, expanding zip bundles.
func (l *sourceLoader) fromBytes(name, ref string, data []byte) ([]model.Source, error) {
	if !fetcher.IsArchive(name) {
		return []model.Source{l.source(name, ref, data)}, nil
	}

	docs, err := fetcher.ReadArchive(data, isImportable, l.maxBytes)
	if err != nil {
		return nil, eris.Wrapf(err, "expand %s", name)
	}
	if len(docs) == 0 {
		zap.L().Warn("archive has no importable documents", zap.String("archive", ref))
	}
	sources := make([]model.Source, 0, len(docs))
	for _, d := range docs {
		entryRef := ""
		if ref != "" {
			entryRef = ref + fetcher.ArchiveSeparator + d.Name
		}
		sources = append(sources, l.source(path.Base(d.Name), entryRef, d.Data))
	}
	return sources, nil
}

func (l *sourceLoader) read(ctx context.Context, ref string) ([]byte, string, error) {
	if fetcher.IsRemote(ref) {
		doc, err := l.fetch.Fetch(ctx, ref)
		if err != nil {
			return nil, "", eris.Wrapf(err, "download %s", ref)
		}
		return doc.Data, doc.Name, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, "", eris.Wrapf(err, "read %s", ref)
	}
	return data, filepath.Base(ref), nil
}

// source wraps content as a model.Source. PDFs are passed as bytes for
// extraction; anything else, or everything when asText is set, is text.
func (l *sourceLoader) source(name, ref string, data []byte) model.Source {
	src := model.Source{Filename: name, Path: ref}
	if !l.asText && isPDF(name) {
		src.PDF = data
	} else {
		src.Text = string(data)
	}
	return src
}

// scanDir lists importable files and zip bundles under dir, sorted by path.
func scanDir(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isImportable(p) || fetcher.IsArchive(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scan %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func isImportable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}
