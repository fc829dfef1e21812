package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func decodeAll(t *testing.T, stream, lastID string) []Frame {
	t.Helper()
	dec := NewDecoder(strings.NewReader(stream), lastID)
	var out []Frame
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, f)
	}
}

func TestDecoderFrames(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		lastID string
		want   []Frame
	}{
		{
			name:   "default event type",
			stream: "data: hello\n\n",
			want:   []Frame{{Kind: FrameEvent, Event: "message", Data: "hello"}},
		},
		{
			name:   "named event with id",
			stream: "event: update\nid: 7\ndata: {\"a\":1}\n\n",
			want:   []Frame{{Kind: FrameEvent, Event: "update", Data: `{"a":1}`, ID: "7", IDSet: true}},
		},
		{
			name:   "multi-line data",
			stream: "data: a\ndata: b\ndata:\n\n",
			want:   []Frame{{Kind: FrameEvent, Event: "message", Data: "a\nb\n"}},
		},
		{
			name:   "id carries over",
			stream: "id: 5\ndata: x\n\ndata: y\n\n",
			want: []Frame{
				{Kind: FrameEvent, Event: "message", Data: "x", ID: "5", IDSet: true},
				{Kind: FrameEvent, Event: "message", Data: "y", ID: "5"},
			},
		},
		{
			name:   "seeded id",
			stream: "data: x\n\n",
			lastID: "41",
			want:   []Frame{{Kind: FrameEvent, Event: "message", Data: "x", ID: "41"}},
		},
		{
			name:   "empty id clears",
			stream: "id\ndata: x\n\n",
			lastID: "41",
			want:   []Frame{{Kind: FrameEvent, Event: "message", Data: "x", IDSet: true}},
		},
		{
			name:   "empty id value clears",
			stream: "id:\ndata: x\n\ndata: y\n\n",
			lastID: "41",
			want: []Frame{
				{Kind: FrameEvent, Event: "message", Data: "x", IDSet: true},
				{Kind: FrameEvent, Event: "message", Data: "y"},
			},
		},
		{
			name:   "id in undispatched block applies to next event",
			stream: "id:\n\ndata: x\n\n",
			lastID: "41",
			want:   []Frame{{Kind: FrameEvent, Event: "message", Data: "x", IDSet: true}},
		},
		{
			name:   "comments and retry",
			stream: ": keepalive\nretry: 1500\nretry: soon\n\n",
			want: []Frame{
				{Kind: FrameComment, Comment: "keepalive"},
				{Kind: FrameRetry, Retry: 1500 * time.Millisecond},
			},
		},
		{
			name:   "block without data is not dispatched",
			stream: "event: ping\n\ndata: z\n\n",
			want:   []Frame{{Kind: FrameEvent, Event: "message", Data: "z"}},
		},
		{
			name:   "crlf and cr line endings",
			stream: "data: a\r\n\r\ndata: b\r\rdata: c\n\n",
			want: []Frame{
				{Kind: FrameEvent, Event: "message", Data: "a"},
				{Kind: FrameEvent, Event: "message", Data: "b"},
				{Kind: FrameEvent, Event: "message", Data: "c"},
			},
		},
		{
			name:   "unterminated block discarded",
			stream: "data: full\n\ndata: partial\n",
			want:   []Frame{{Kind: FrameEvent, Event: "message", Data: "full"}},
		},
		{
			name:   "unknown fields ignored",
			stream: "foo: bar\ndata:nospace\n\n",
			want:   []Frame{{Kind: FrameEvent, Event: "message", Data: "nospace"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeAll(t, tt.stream, tt.lastID)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d frames %+v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("frame %d: got %+v want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecoderLastEventID(t *testing.T) {
	dec := NewDecoder(strings.NewReader("id: 3\ndata: x\n\n"), "")
	if _, err := dec.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if dec.LastEventID() != "3" {
		t.Fatalf("last id %q", dec.LastEventID())
	}
}

func TestDecoderLineTooLong(t *testing.T) {
	long := strings.Repeat("x", MaxLineSize+1)
	dec := NewDecoder(strings.NewReader("data: ok\n\ndata: "+long+"\n\n"), "")
	f, err := dec.Next()
	if err != nil || f.Data != "ok" {
		t.Fatalf("first frame %+v, err %v", f, err)
	}
	if _, err := dec.Next(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("got %v, want ErrLineTooLong", err)
	}
}

func TestDecoderLineAtLimit(t *testing.T) {
	data := strings.Repeat("y", MaxLineSize-len("data: "))
	got := decodeAll(t, "data: "+data+"\n\n", "")
	if len(got) != 1 || got[0].Data != data {
		t.Fatalf("expected one frame carrying the full line, got %d frames", len(got))
	}
}
