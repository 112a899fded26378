package transport

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeStream feeds the framer from a fixed input and captures its output.
type pipeStream struct {
	r *strings.Reader
	w bytes.Buffer
}

func newPipeStream(input string) *pipeStream {
	return &pipeStream{r: strings.NewReader(input)}
}

func (s *pipeStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *pipeStream) WriteAll(p []byte) error {
	s.w.Write(p)
	return nil
}

func newTestFramer(input string, chunked bool) (*Framer, *pipeStream) {
	ps := newPipeStream(input)
	f := NewFramer(ps)
	if chunked {
		f.Upgrade()
	}
	return f, ps
}

var markedReadTests = []struct {
	name  string
	input string
	want  string
	err   error
}{
	{"normal", "foo]]>]]>", "foo", nil},
	{"empty frame", "]]>]]>", "", nil},
	{"partial delim", "foo]]>]]bar]]>]]>", "foo]]>]]bar", nil},
	{"no delim", "uhohwhathappened", "", io.ErrUnexpectedEOF},
	{"truncated delim", "foo]]>", "", io.ErrUnexpectedEOF},
	{"empty stream", "", "", io.ErrUnexpectedEOF},
}

func TestMarkedReadMsg(t *testing.T) {
	for _, tc := range markedReadTests {
		t.Run(tc.name, func(t *testing.T) {
			f, _ := newTestFramer(tc.input, false)

			got, err := f.ReadMsg()
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestMarkedReadMsgSequence(t *testing.T) {
	f, _ := newTestFramer("foo]]>]]>bar]]>]]>", false)

	got, err := f.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, "foo", string(got))

	got, err = f.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, "bar", string(got))

	_, err = f.ReadMsg()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

var chunkedReadTests = []struct {
	name  string
	input string
	want  string
	err   error
}{
	{"normal", "\n#3\nfoo\n##\n", "foo", nil},
	{"multichunk", "\n#3\nfoo\n#3\nbar\n##\n", "foobar", nil},
	{"single byte chunks", "\n#1\na\n#1\nb\n#1\nc\n##\n", "abc", nil},
	{"empty frame", "\n##\n", "", ErrMalformedChunk},
	{"zero len chunk", "\n#0\n", "", ErrMalformedChunk},
	{"many zeros", "\n#000\n", "", ErrMalformedChunk},
	{"non decimal len", "\n#big\n", "", ErrMalformedChunk},
	{"negative len", "\n#-5\n", "", ErrMalformedChunk},
	{"overflow len", "\n#4294967296\n", "", ErrMalformedChunk},
	{"eof before header", "", "", io.ErrUnexpectedEOF},
	{"eof in header", "\n#3", "", io.ErrUnexpectedEOF},
	{"eof mid chunk", "\n#10\nshort", "", io.ErrUnexpectedEOF},
	{"eof before terminator", "\n#3\nfoo", "", io.ErrUnexpectedEOF},
}

func TestChunkedReadMsg(t *testing.T) {
	for _, tc := range chunkedReadTests {
		t.Run(tc.name, func(t *testing.T) {
			f, _ := newTestFramer(tc.input, true)

			got, err := f.ReadMsg()
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

// The RFC6242 section 4.2 example message, reassembled across chunks.
func TestChunkedReadMsgRFCExample(t *testing.T) {
	input := "\n#4\n<rpc\n#18\n message-id=\"102\"\n\n#79\n     xmlns=\"urn:ietf:params:xml:ns:netconf:base:1.0\">\n  <close-session/>\n</rpc>\n##\n"
	want := "<rpc message-id=\"102\"\n     xmlns=\"urn:ietf:params:xml:ns:netconf:base:1.0\">\n  <close-session/>\n</rpc>"

	f, _ := newTestFramer(input, true)
	got, err := f.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

func TestMarkedWriteMsg(t *testing.T) {
	f, ps := newTestFramer("", false)

	require.NoError(t, f.WriteMsg([]byte("foo")))
	assert.Equal(t, "foo]]>]]>", ps.w.String())

	require.NoError(t, f.WriteMsg([]byte("bar")))
	assert.Equal(t, "foo]]>]]>bar]]>]]>", ps.w.String())
}

func TestChunkedWriteMsg(t *testing.T) {
	f, ps := newTestFramer("", true)

	require.NoError(t, f.WriteMsg([]byte("hello world")))
	assert.Equal(t, "\n#11\nhello world\n##\n", ps.w.String())
}

func TestChunkedWriteMsgEmpty(t *testing.T) {
	f, ps := newTestFramer("", true)

	err := f.WriteMsg(nil)
	assert.ErrorIs(t, err, ErrMalformedChunk)
	assert.Zero(t, ps.w.Len())
}

func TestUpgrade(t *testing.T) {
	f, ps := newTestFramer("", false)
	assert.False(t, f.Chunked())

	require.NoError(t, f.WriteMsg([]byte("v10")))
	f.Upgrade()
	assert.True(t, f.Chunked())
	require.NoError(t, f.WriteMsg([]byte("v11")))

	assert.Equal(t, "v10]]>]]>\n#3\nv11\n##\n", ps.w.String())
}

// Round-trip property: whatever one framer writes, a framer of the same
// discipline reads back, for payloads around the buffer-growth boundary.
func TestRoundTrip(t *testing.T) {
	sizes := []int{1, 2, 7, 1023, 1024, 1025, 4096, 70000}

	for _, chunked := range []bool{false, true} {
		for _, size := range sizes {
			name := fmt.Sprintf("chunked=%v/size=%d", chunked, size)
			t.Run(name, func(t *testing.T) {
				payload := bytes.Repeat([]byte("x<y>z"), size/5+1)[:size]
				if !chunked {
					// Keep end-of-message framing unambiguous.
					payload = bytes.ReplaceAll(payload, []byte(">"), []byte("-"))
				}

				enc, ps := newTestFramer("", chunked)
				require.NoError(t, enc.WriteMsg(payload))

				dec, _ := newTestFramer(ps.w.String(), chunked)
				got, err := dec.ReadMsg()
				require.NoError(t, err)
				assert.Equal(t, payload, got)
			})
		}
	}
}

// Any chunking of a payload decodes to the same bytes.
func TestChunkedReadMsgArbitrarySplits(t *testing.T) {
	payload := "<rpc-reply message-id=\"7\"><data/></rpc-reply>"

	for split := 1; split < len(payload); split++ {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "\n#%d\n%s", split, payload[:split])
		fmt.Fprintf(&buf, "\n#%d\n%s", len(payload)-split, payload[split:])
		buf.WriteString("\n##\n")

		f, _ := newTestFramer(buf.String(), true)
		got, err := f.ReadMsg()
		require.NoError(t, err)
		require.Equal(t, payload, string(got))
	}
}

func TestReadUntil(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		sentinel string
		want     string
	}{
		{"immediate", "##rest", "##", "##"},
		{"offset", "abc##rest", "##", "abc##"},
		{"first occurrence", "a#b##c##", "##", "a#b##"},
		{"overlapping tail", "]]]>]]>", "]]>]]>", "]]]>]]>"},
		{"longer than initial buffer", strings.Repeat("a", 5000) + "##", "##", strings.Repeat("a", 5000) + "##"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, _ := newTestFramer(tc.input, false)

			got, err := f.readUntil([]byte(tc.sentinel))
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))

			// The sentinel terminates the buffer and appears nowhere
			// earlier.
			require.True(t, bytes.HasSuffix(got, []byte(tc.sentinel)))
			assert.Equal(t, len(got)-len(tc.sentinel), bytes.Index(got, []byte(tc.sentinel)))
		})
	}
}

func TestReadUntilEOF(t *testing.T) {
	f, _ := newTestFramer("no sentinel here", false)
	_, err := f.readUntil([]byte("##"))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
