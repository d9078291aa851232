package netascii

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func TestBareLFExpandedToCRLF(t *testing.T) {
	r := NewReader(strings.NewReader("a\nb\nc"))
	assert.Equal(t, []byte("a\r\nb\r\nc"), readAll(t, r))
}

func TestExistingCRLFPreserved(t *testing.T) {
	r := NewReader(strings.NewReader("a\r\nb"))
	assert.Equal(t, []byte("a\r\nb"), readAll(t, r))
}

func TestBareCRPreserved(t *testing.T) {
	r := NewReader(strings.NewReader("a\rb"))
	assert.Equal(t, []byte("a\rb"), readAll(t, r))
}

func TestNoNewlinesPassThrough(t *testing.T) {
	r := NewReader(strings.NewReader("plain text"))
	assert.Equal(t, []byte("plain text"), readAll(t, r))
}

func TestSmallReadBufferSplitsAcrossExpansion(t *testing.T) {
	src := "x\ny"
	r := NewReader(strings.NewReader(src))
	var out bytes.Buffer
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Equal(t, "x\r\ny", out.String())
}
