package mbox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(buf []byte) []string {
	var out []string
	for _, entry := range Entries(buf) {
		out = append(out, string(entry))
	}
	return out
}

func TestReader_Next(t *testing.T) {
	tests := []struct {
		name string
		buf  string
		want []string
	}{
		{
			name: "preamble line then two records",
			buf:  "x\r\n\r\nFrom a\r\nBODY1\r\n\r\n\r\nFrom b\r\nBODY2\r\n",
			want: []string{"BODY1\r\n", "BODY2\r\n"},
		},
		{
			name: "single record",
			buf:  "From a\r\nSubject: hi\r\n\r\nbody\r\n",
			want: []string{"Subject: hi\r\n\r\nbody\r\n"},
		},
		{
			name: "lf terminators",
			buf:  "From a\nA\n\nFrom b\nB\n",
			want: []string{"A", "B\n"},
		},
		{
			name: "from inside body without blank line is kept",
			buf:  "From a\r\nline\r\nFrom here on\r\n\r\nFrom b\r\nB\r\n",
			want: []string{"line\r\nFrom here on", "B\r\n"},
		},
		{
			name: "lowercase from is not a boundary",
			buf:  "From a\r\nA\r\n\r\nfrom b\r\nB\r\n",
			want: []string{"A\r\n\r\nfrom b\r\nB\r\n"},
		},
		{
			name: "separator only",
			buf:  "From a\r\n",
			want: []string{""},
		},
		{
			name: "empty buffer",
			buf:  "",
			want: nil,
		},
		{
			name: "no line terminator",
			buf:  "From a",
			want: nil,
		},
		{
			name: "shorter than boundary",
			buf:  "F\n",
			want: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect([]byte(tt.buf)))
		})
	}
}

func TestReader_ExhaustedStaysExhausted(t *testing.T) {
	r := NewReader([]byte("From a\r\nA\r\n"))

	entry, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, "A\r\n", string(entry))

	for i := 0; i < 3; i++ {
		_, ok = r.Next()
		assert.False(t, ok)
	}
}

func TestReader_ZeroCopy(t *testing.T) {
	buf := []byte("From a\r\nBODY\r\n")
	entry, ok := NewReader(buf).Next()
	require.True(t, ok)

	entry[0] = 'b'
	assert.Equal(t, byte('b'), buf[len("From a\r\n")])
}

// A non-final entry ends where the blank line before the next separator
// begins, so the body's own trailing CRLF is part of the boundary. The final
// entry keeps everything up to the end of the buffer.
func TestRecord_RoundTrip(t *testing.T) {
	bodies := []string{
		"Message-ID: <1@example.com>\r\nSubject: one\r\n\r\nfirst\r\n",
		"Subject: two\r\n\r\nsecond without terminator",
		"Subject: three\r\n\r\nbody\r\nFrom the middle of a paragraph\r\n",
		"x",
	}

	var buf bytes.Buffer
	for _, body := range bodies {
		buf.Write(Record([]byte(body)))
	}

	want := []string{
		"Message-ID: <1@example.com>\r\nSubject: one\r\n\r\nfirst",
		"Subject: two\r\n\r\nsecond without terminator",
		"Subject: three\r\n\r\nbody\r\nFrom the middle of a paragraph",
		"x\r\n\r\n",
	}
	assert.Equal(t, want, collect(buf.Bytes()))
}

func TestRecord_RoundTripFinalEntry(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: "Subject: a\r\n\r\nbody\r\n", want: "Subject: a\r\n\r\nbody\r\n\r\n"},
		{body: "Subject: a\r\n\r\nbody", want: "Subject: a\r\n\r\nbody\r\n\r\n"},
	}

	for _, tt := range tests {
		assert.Equal(t, []string{tt.want}, collect(Record([]byte(tt.body))))
	}
}

func TestCount(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 250; i++ {
		buf.Write(Record([]byte("Subject: x\r\n\r\nbody\r\n")))
	}
	assert.Equal(t, 250, Count(buf.Bytes()))
	assert.Equal(t, 0, Count(nil))
}

func TestIndexOf_ShortBuffer(t *testing.T) {
	assert.Equal(t, -1, indexOf([]byte("\r\n"), boundaryCRLF))
	assert.Equal(t, -1, indexOf(nil, boundaryLF))
	assert.Equal(t, 0, indexOf(boundaryLF, boundaryLF))
}
