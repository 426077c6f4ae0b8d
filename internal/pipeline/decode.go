package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"inference-filter/internal/shared"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// decodeContent undoes a request Content-Encoding. The decoded payload is
// bounded by limit.
func decodeContent(data []byte, encoding string, limit int64) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return data, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, shared.DecodeError(fmt.Errorf("gzip: %w", err))
		}
		defer zr.Close()
		r = zr
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, shared.DecodeError(fmt.Errorf("zstd: %w", err))
		}
		defer zr.Close()
		r = zr
	default:
		return nil, shared.DecodeError(fmt.Errorf("unsupported content encoding %q", encoding))
	}

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, shared.DecodeError(fmt.Errorf("%s: %w", encoding, err))
	}
	if int64(len(out)) > limit {
		return nil, shared.DecodeError(fmt.Errorf("decoded body exceeds %d bytes", limit))
	}
	return out, nil
}
