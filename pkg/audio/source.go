package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// defaultChunkMs is the duration of one emitted chunk.
const defaultChunkMs = 100

// ReaderSource streams fixed-duration PCM chunks from an io.Reader,
// normalized to a target format. It satisfies the capture layer's audio
// source contract.
type ReaderSource struct {
	r      io.Reader
	closer io.Closer
	src    Format
	dst    Format
	chunk  int
}

// NewReaderSource wraps r, which must deliver raw little-endian int16 PCM in
// the src format. Chunks handed to consumers are normalized to dst.
func NewReaderSource(r io.Reader, src, dst Format) *ReaderSource {
	chunk := src.SampleRate * src.bytesPerFrame() * defaultChunkMs / 1000
	if chunk < src.bytesPerFrame() {
		chunk = src.bytesPerFrame()
	}
	s := &ReaderSource{r: r, src: src, dst: dst, chunk: chunk}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenSource opens the PCM stream at path (a file, FIFO, or character
// device) as a ReaderSource.
func OpenSource(path string, src, dst Format) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open source %q: %w", path, err)
	}
	return NewReaderSource(f, src, dst), nil
}

// Stream reads chunks until the reader is exhausted or ctx is cancelled. The
// returned channel is closed when the stream ends.
func (s *ReaderSource) Stream(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte, 4)
	go func() {
		defer close(out)
		norm := Normalizer{Source: s.src, Target: s.dst}
		for {
			buf := make([]byte, s.chunk)
			n, err := io.ReadFull(s.r, buf)
			if n > 0 {
				if pcm := norm.Normalize(buf[:n-n%s.src.bytesPerFrame()]); len(pcm) > 0 {
					select {
					case out <- pcm:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					select {
					case <-ctx.Done():
					default:
					}
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return out, nil
}

// Close releases the underlying reader when it is closable.
func (s *ReaderSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// WriterSink writes synthesized audio chunks to an io.Writer. It satisfies
// the narration layer's audio sink contract.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink wraps w as an audio sink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// OpenSink opens (or creates) the PCM stream at path as a WriterSink.
func OpenSink(path string) (*WriterSink, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("audio: open sink %q: %w", path, err)
	}
	return NewWriterSink(f), f, nil
}

// Write delivers one chunk, honoring cancellation between chunks.
func (s *WriterSink) Write(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.w.Write(chunk); err != nil {
		return fmt.Errorf("audio: write chunk: %w", err)
	}
	return nil
}
