package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"constellation/internal/artifacts"
	"constellation/internal/fileutil"
	"constellation/internal/fingerprint"
	"constellation/internal/language"
	"constellation/internal/pipeline"
	"constellation/internal/services"
)

// Peeker reads an artifact without recording a cache hit.
type Peeker interface {
	Peek(ctx context.Context, fp fingerprint.Fingerprint) (*artifacts.Entry, error)
}

// ExportArtifact copies the payload stored under fp to path and verifies the
// written bytes against the stored digest.
func ExportArtifact(ctx context.Context, store Peeker, fp fingerprint.Fingerprint, path string) (*artifacts.Entry, error) {
	entry, err := store.Peek(ctx, fp)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "export", "peek", fp.Short(), err)
	}
	if entry == nil {
		return nil, services.Wrap(services.ErrValidation, "export", "peek", fmt.Sprintf("no artifact for %s", fp.Short()), nil)
	}
	if err := fileutil.WriteFileVerified(path, entry.Payload, entry.PayloadDigest, 0o644); err != nil {
		return nil, fmt.Errorf("export %s: %w", fp.Short(), err)
	}
	return entry, nil
}

// AudioFileName names an exported episode audio file.
func AudioFileName(slug string, lang language.Language) string {
	return fmt.Sprintf("%s.%s.mp3", slug, lang.ISO2())
}

func exportAudio(ctx context.Context, store Peeker, dir, slug string, manifest *pipeline.Manifest) (map[string]string, error) {
	paths := make(map[string]string, len(manifest.CompletedLanguages))
	for _, name := range manifest.CompletedLanguages {
		lang := language.Language(name)
		fp, ok := manifest.StageFingerprints[pipeline.SynthesizeKey(lang)]
		if !ok {
			continue
		}
		path := filepath.Join(dir, AudioFileName(slug, lang))
		if _, err := ExportArtifact(ctx, store, fingerprint.Fingerprint(fp), path); err != nil {
			return paths, err
		}
		paths[name] = path
	}
	return paths, nil
}
