// Package compression provides streaming compression for captured step output
package compression

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	commonerrors "github.com/deploymenttheory/go-pipeline-runner/internal/common/errors"
	"github.com/ulikunitz/xz"
)

// Supported compression formats
const (
	None  = "none"
	GZIP  = "gzip"
	BZIP2 = "bzip2"
	XZ    = "xz"
)

// nopWriteCloser wraps a plain writer for the uncompressed case
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with a compressing writer for the given format.
// The returned writer must be closed to flush compressed trailers.
func NewWriter(w io.Writer, format string) (io.WriteCloser, error) {
	switch format {
	case None, "":
		return nopWriteCloser{w}, nil
	case GZIP:
		return gzip.NewWriter(w), nil
	case BZIP2:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, fmt.Errorf("failed to create bzip2 writer: %w", err)
		}
		return bw, nil
	case XZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xw, nil
	default:
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrUnsupportedEncoding, format)
	}
}

// NewReader wraps r with a decompressing reader for the given format
func NewReader(r io.Reader, format string) (io.Reader, error) {
	switch format {
	case None, "":
		return r, nil
	case GZIP:
		return gzip.NewReader(r)
	case BZIP2:
		return bzip2.NewReader(r, nil)
	case XZ:
		return xz.NewReader(r)
	default:
		return nil, fmt.Errorf("%w: %s", commonerrors.ErrUnsupportedEncoding, format)
	}
}

// Extension returns the file extension for the given format, including the dot.
// The uncompressed format maps to ".log".
func Extension(format string) string {
	switch format {
	case GZIP:
		return ".log.gz"
	case BZIP2:
		return ".log.bz2"
	case XZ:
		return ".log.xz"
	default:
		return ".log"
	}
}

// IsSupported reports whether format names a known compression scheme
func IsSupported(format string) bool {
	switch format {
	case None, "", GZIP, BZIP2, XZ:
		return true
	}
	return false
}
