package api

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ChunkedReader decodes an aws-chunked request body:
//
//	<hex-size>;chunk-signature=<signature>\r\n
//	<data>\r\n
//	...
//	0;chunk-signature=<final-signature>\r\n
//	\r\n
//
// Chunk signatures are not re-verified; the outer request signature
// already covers the seed.
type ChunkedReader struct {
	reader    *bufio.Reader
	remaining int64
	done      bool
}

// NewChunkedReader creates a new ChunkedReader.
func NewChunkedReader(r io.Reader) *ChunkedReader {
	return &ChunkedReader{reader: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (cr *ChunkedReader) Read(p []byte) (int, error) {
	if cr.done {
		return 0, io.EOF
	}

	if cr.remaining == 0 {
		if err := cr.readChunkHeader(); err != nil {
			return 0, err
		}
		if cr.remaining == 0 {
			// Final zero-size chunk; consume the trailing CRLF and any
			// trailer lines.
			cr.done = true
			cr.discardTrailers()
			return 0, io.EOF
		}
	}

	toRead := int64(len(p))
	if toRead > cr.remaining {
		toRead = cr.remaining
	}

	n, err := cr.reader.Read(p[:toRead])
	cr.remaining -= int64(n)

	if cr.remaining == 0 && n > 0 {
		// CRLF after chunk data.
		_, _ = cr.reader.ReadString('\n')
	}

	if err == io.EOF && !cr.done {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

// readChunkHeader parses one <hex-size>;chunk-signature=... line.
func (cr *ChunkedReader) readChunkHeader() error {
	line, err := cr.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	line = strings.TrimSuffix(line, "\r\n")
	line = strings.TrimSuffix(line, "\n")

	sizeStr := line
	if idx := strings.Index(line, ";"); idx >= 0 {
		sizeStr = line[:idx]
	}

	size, err := strconv.ParseInt(sizeStr, 16, 64)
	if err != nil || size < 0 {
		return errors.New("invalid chunk size")
	}

	cr.remaining = size
	return nil
}

// discardTrailers drains trailer checksum lines after the final chunk.
func (cr *ChunkedReader) discardTrailers() {
	for {
		line, err := cr.reader.ReadString('\n')
		if err != nil || line == "\r\n" || line == "\n" {
			return
		}
	}
}

// IsAWSChunked reports whether the request body uses aws-chunked
// framing.
func IsAWSChunked(contentEncoding, contentSHA256 string) bool {
	if strings.Contains(contentEncoding, "aws-chunked") {
		return true
	}
	return strings.HasPrefix(contentSHA256, "STREAMING-")
}
