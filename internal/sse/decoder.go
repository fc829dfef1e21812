package sse

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// FrameKind identifies what a Frame carries.
type FrameKind int

const (
	// FrameEvent is a dispatched event block.
	FrameEvent FrameKind = iota
	// FrameComment is a line starting with ':'.
	FrameComment
	// FrameRetry is a valid retry directive.
	FrameRetry
)

// Frame is one unit decoded from an event stream. Comments and retry
// directives are reported as soon as their line is read; events are reported
// when their block ends.
type Frame struct {
	Kind FrameKind
	// Event is the event type; "message" when the block had no event field.
	Event string
	Data  string
	// ID is the last event id in effect for this block. It carries over from
	// earlier blocks until an id field replaces it.
	ID string
	// IDSet reports that an id field was read since the previous event,
	// including in blocks that were not dispatched. An empty ID with IDSet
	// clears the cursor.
	IDSet   bool
	Comment string
	Retry   time.Duration
}

// MaxLineSize bounds a single line of the stream. A longer line fails the
// read with ErrLineTooLong.
const MaxLineSize = 1 << 20

// ErrLineTooLong is returned when a line exceeds MaxLineSize.
var ErrLineTooLong = errors.New("sse: line exceeds maximum size")

// Decoder reads Frames from a text/event-stream body.
type Decoder struct {
	reader *bufio.Reader

	eventType string
	data      strings.Builder
	hasData   bool
	lastID    string
	idSet     bool
	// skipLF is set after a CR so that a following LF is not read as an
	// empty line.
	skipLF bool
}

// NewDecoder creates a Decoder reading from r. lastID seeds the id carried by
// events that do not set one, normally the Last-Event-ID sent on connect.
func NewDecoder(r io.Reader, lastID string) *Decoder {
	return &Decoder{reader: bufio.NewReader(r), lastID: lastID}
}

// Next returns the next frame. A block cut off by the end of the stream is
// discarded and io.EOF is returned.
func (d *Decoder) Next() (Frame, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.reset()
			}
			return Frame{}, err
		}

		if line == "" {
			if !d.hasData {
				d.eventType = ""
				continue
			}
			f := Frame{Kind: FrameEvent, Event: d.eventType, Data: d.data.String(), ID: d.lastID, IDSet: d.idSet}
			if f.Event == "" {
				f.Event = "message"
			}
			d.reset()
			return f, nil
		}

		if line[0] == ':' {
			return Frame{Kind: FrameComment, Comment: strings.TrimPrefix(line[1:], " ")}, nil
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
		}
		switch field {
		case "event":
			d.eventType = value
		case "data":
			if d.hasData {
				d.data.WriteByte('\n')
			}
			d.data.WriteString(value)
			d.hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
				d.idSet = true
			}
		case "retry":
			if ms, ok := parseRetry(value); ok {
				return Frame{Kind: FrameRetry, Retry: time.Duration(ms) * time.Millisecond}, nil
			}
		}
	}
}

// LastEventID returns the id currently in effect.
func (d *Decoder) LastEventID() string { return d.lastID }

func (d *Decoder) reset() {
	d.eventType = ""
	d.data.Reset()
	d.hasData = false
	d.idSet = false
}

// readLine returns one line without its terminator. CR, LF and CRLF all end a
// line.
func (d *Decoder) readLine() (string, error) {
	var sb strings.Builder
	for {
		b, err := d.reader.ReadByte()
		if err != nil {
			// a partial final line is discarded with the block it belongs to
			return "", err
		}
		if d.skipLF {
			d.skipLF = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			return sb.String(), nil
		case '\r':
			d.skipLF = true
			return sb.String(), nil
		default:
			if sb.Len() >= MaxLineSize {
				return "", ErrLineTooLong
			}
			sb.WriteByte(b)
		}
	}
}

func parseRetry(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, false
		}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}
