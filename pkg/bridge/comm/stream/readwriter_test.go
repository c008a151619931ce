package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWritePackets(t *testing.T) {
	var buf bytes.Buffer
	rw := New(&buf)
	require.NoError(t, rw.WritePacket([]byte{1, 2, 3}))
	require.NoError(t, rw.WritePacket(nil))
	assert.Equal(t, []byte{3, 0, 0, 0, 1, 2, 3, 0, 0, 0, 0}, buf.Bytes())

	pkt, err := rw.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, pkt)
	pkt, err = rw.ReadPacket()
	require.NoError(t, err)
	assert.Empty(t, pkt)
	_, err = rw.ReadPacket()
	assert.Equal(t, io.EOF, err)
}

func TestReadOversizePacket(t *testing.T) {
	rw := New(bytes.NewBuffer([]byte{0, 0, 0x20, 0}))
	_, err := rw.ReadPacket()
	assert.Error(t, err)
}

func TestReadTruncatedPacket(t *testing.T) {
	rw := New(bytes.NewBuffer([]byte{4, 0, 0, 0, 1, 2}))
	_, err := rw.ReadPacket()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}
