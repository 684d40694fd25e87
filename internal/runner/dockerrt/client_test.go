package dockerrt

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(streamType byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = streamType
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	return append(header, []byte(payload)...)
}

func TestDemultiplexStream_DecodesSingleFrame(t *testing.T) {
	src := bytes.NewReader(frame(1, "hello"))
	pr, pw := io.Pipe()
	go demultiplexStream(pw, src)

	got, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestDemultiplexStream_ConcatenatesMultipleFrames(t *testing.T) {
	var raw []byte
	raw = append(raw, frame(1, "foo")...)
	raw = append(raw, frame(2, "bar")...)
	src := bytes.NewReader(raw)
	pr, pw := io.Pipe()
	go demultiplexStream(pw, src)

	got, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "foobar", string(got))
}

func TestDemultiplexStream_SkipsZeroLengthFrames(t *testing.T) {
	var raw []byte
	raw = append(raw, frame(1, "")...)
	raw = append(raw, frame(1, "after")...)
	src := bytes.NewReader(raw)
	pr, pw := io.Pipe()
	go demultiplexStream(pw, src)

	got, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "after", string(got))
}

func TestDemultiplexStream_ClosesWithErrorOnTruncatedHeader(t *testing.T) {
	src := bytes.NewReader([]byte{0, 0, 0})
	pr, pw := io.Pipe()
	go demultiplexStream(pw, src)

	_, err := io.ReadAll(pr)
	assert.Error(t, err)
}
