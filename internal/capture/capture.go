// Package capture persists step output and hands out opaque references.
// The executor never holds captured output itself; it writes into a sink and
// keeps only the Ref returned when the sink is persisted.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	compression "github.com/deploymenttheory/go-pipeline-runner/internal/common/compressionutil"
	"github.com/deploymenttheory/go-pipeline-runner/internal/common/cryptoutil"
	commonerrors "github.com/deploymenttheory/go-pipeline-runner/internal/common/errors"
	"github.com/deploymenttheory/go-pipeline-runner/internal/common/fsutil"
)

// Ref is an opaque handle to persisted step output
type Ref struct {
	Path        string `json:"path" yaml:"path"`
	Size        int64  `json:"size" yaml:"size"`
	Digest      string `json:"digest" yaml:"digest"`
	Algorithm   string `json:"algorithm" yaml:"algorithm"`
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty"`
}

// Store persists captured output under a base directory
type Store struct {
	dir         string
	compression string
	algorithm   cryptoutil.HashAlgorithm
	hasher      cryptoutil.Hasher
	redactor    *Redactor
}

// Options configures a capture store
type Options struct {
	Dir         string
	Compression string // none, gzip, bzip2 or xz
	Digest      string // sha256, sha512 or blake2b
	Redactor    *Redactor
}

// NewStore creates a capture store, validating the compression and digest choices
func NewStore(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: capture store requires a directory", commonerrors.ErrInvalidArgument)
	}
	if !compression.IsSupported(opts.Compression) {
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrUnsupportedEncoding, opts.Compression)
	}

	algorithm := cryptoutil.HashAlgorithm(opts.Digest)
	if opts.Digest == "" {
		algorithm = cryptoutil.SHA256
	}
	hasher, err := cryptoutil.NewHasher(algorithm)
	if err != nil {
		return nil, err
	}

	if err := fsutil.CreateDirIfNotExists(opts.Dir); err != nil {
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrCaptureFailed, err.Error())
	}

	return &Store{
		dir:         opts.Dir,
		compression: opts.Compression,
		algorithm:   algorithm,
		hasher:      hasher,
		redactor:    opts.Redactor,
	}, nil
}

// Sink buffers the combined output of a single step until it is persisted
type Sink struct {
	store *Store
	runID string
	step  string
	buf   bytes.Buffer
}

// NewSink creates a sink for one step of one run
func (s *Store) NewSink(runID, stepName string) *Sink {
	return &Sink{store: s, runID: runID, step: stepName}
}

// Write buffers raw step output
func (k *Sink) Write(p []byte) (int, error) {
	return k.buf.Write(p)
}

// Persist redacts the buffered output, writes it to the store and returns a
// reference. The digest covers the redacted, uncompressed bytes so it stays
// comparable regardless of the compression setting.
func (k *Sink) Persist() (*Ref, error) {
	data := k.store.redactor.Redact(k.buf.Bytes())

	digest, err := k.store.hasher.Hash(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrCaptureFailed, err.Error())
	}

	runDir := filepath.Join(k.store.dir, k.runID)
	if err := fsutil.CreateDirIfNotExists(runDir); err != nil {
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrCaptureFailed, err.Error())
	}

	path := filepath.Join(runDir, sanitizeName(k.step)+compression.Extension(k.store.compression))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrCaptureFailed, err.Error())
	}

	writer, err := compression.NewWriter(file, k.store.compression)
	if err != nil {
		file.Close()
		return nil, err
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrCaptureFailed, err.Error())
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrCaptureFailed, err.Error())
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrCaptureFailed, err.Error())
	}

	return &Ref{
		Path:        path,
		Size:        int64(len(data)),
		Digest:      digest,
		Algorithm:   string(k.store.algorithm),
		Compression: k.store.compression,
	}, nil
}

// Read loads and decompresses the output behind a reference, for diagnostics
func (s *Store) Read(ref *Ref) ([]byte, error) {
	file, err := os.Open(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrFileNotFound, ref.Path)
	}
	defer file.Close()

	reader, err := compression.NewReader(file, ref.Compression)
	if err != nil {
		return nil, err
	}

	return io.ReadAll(reader)
}

// sanitizeName maps a step name onto a safe file name
func sanitizeName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, name)

	if mapped == "" {
		return "step"
	}
	return mapped
}
