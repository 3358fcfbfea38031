package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// ErrDecodeFatal means the first LZMA stream in a blob could not be parsed
// at all. The caller should skip the whole blob.
var ErrDecodeFatal = errors.New("codec: first lzma stream is malformed")

// decompressAllStreams iterates concatenated LZMA ("alone" format) streams
// in data, as dukascopy occasionally packs more than one per blob. It
// decodes a stream, notes how many input bytes it consumed, and starts a
// fresh decoder on the remainder. It stops when no bytes remain or the next
// stream fails to parse after at least one stream has already succeeded —
// that trailing garbage is a known archive quirk and is truncated silently.
func decompressAllStreams(data []byte) ([]byte, error) {
	var out bytes.Buffer
	remaining := data
	streamsDecoded := 0

	for len(remaining) > 0 {
		r := bytes.NewReader(remaining)
		lr, err := lzma.NewReader(r)
		if err != nil {
			if streamsDecoded == 0 {
				return nil, fmt.Errorf("%w: %v", ErrDecodeFatal, err)
			}
			break
		}

		chunk, err := io.ReadAll(lr)
		if err != nil {
			if streamsDecoded == 0 {
				return nil, fmt.Errorf("%w: %v", ErrDecodeFatal, err)
			}
			break
		}

		out.Write(chunk)
		streamsDecoded++

		consumed := len(remaining) - r.Len()
		if consumed <= 0 || consumed > len(remaining) {
			// Can't make forward progress; whatever is left is trailing
			// garbage after a successful stream.
			break
		}
		remaining = remaining[consumed:]
	}

	if streamsDecoded == 0 {
		return nil, ErrDecodeFatal
	}

	return out.Bytes(), nil
}
