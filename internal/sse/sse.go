// Package sse decodes Server-Sent Event streams. It covers the two shapes
// the providers need: OpenAI-style data-only events and Anthropic-style
// named events.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Decoder yields one event per Next call: the joined "data:" payload plus
// the last "event:" name seen in the block (empty for data-only streams).
type Decoder struct {
	r     *bufio.Reader
	data  bytes.Buffer
	event string
	err   error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next advances to the next event boundary. It returns false on EOF or a
// read error; a partial trailing event is still delivered.
func (d *Decoder) Next() bool {
	if d.err != nil {
		return false
	}
	d.data.Reset()
	d.event = ""

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && d.data.Len() > 0 {
				d.err = io.EOF
				return true
			}
			d.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if d.data.Len() == 0 && d.event == "" {
				continue
			}
			return true
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		if name, ok := fieldValue(line, "event"); ok {
			d.event = name
			continue
		}
		if v, ok := fieldValue(line, "data"); ok {
			if d.data.Len() > 0 {
				d.data.WriteByte('\n')
			}
			d.data.WriteString(v)
		}
	}
}

func fieldValue(line, field string) (string, bool) {
	if !strings.HasPrefix(line, field+":") {
		return "", false
	}
	v := strings.TrimPrefix(line, field+":")
	return strings.TrimPrefix(v, " "), true
}

// Data returns the payload of the current event.
func (d *Decoder) Data() []byte {
	if d == nil {
		return nil
	}
	return d.data.Bytes()
}

// Event returns the name of the current event, if the stream names events.
func (d *Decoder) Event() string {
	if d == nil {
		return ""
	}
	return d.event
}

func (d *Decoder) Err() error {
	if d == nil || d.err == io.EOF {
		return nil
	}
	return d.err
}
