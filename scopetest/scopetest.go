// Package scopetest provides an in-memory instrument for exercising
// SCPI drivers without hardware.
package scopetest

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned by Write when a query has no scripted response
// and Strict is set
var ErrUnknownCommand = errors.New("no response scripted for command")

// Instrument is a message-oriented fake device.  Each Write replaces any
// unread response, like the USBTMC kernel driver does; each Read returns at
// most one chunk of the pending response.
type Instrument struct {
	mu sync.Mutex

	// Responses maps a query to its reply
	Responses map[string][]byte

	// Chunks, if not empty, caps successive reads of a response.  The last
	// entry repeats.  Reads are also capped by the caller's buffer.
	Chunks []int

	// Strict makes unscripted queries an error instead of an empty response
	Strict bool

	// ReadErr and WriteErr, when set, are returned by every call
	ReadErr  error
	WriteErr error

	// Log is every command written, in order
	Log []string

	pending []byte
	reads   int
}

// New returns an Instrument with no scripted responses
func New() *Instrument {
	return &Instrument{Responses: map[string][]byte{}}
}

// Set scripts the reply to a query
func (i *Instrument) Set(query, reply string) *Instrument {
	i.Responses[query] = []byte(reply)
	return i
}

// SetBlock scripts a binary block reply of the form #<d><len><payload><term>
func (i *Instrument) SetBlock(query string, payload []byte, term byte) *Instrument {
	i.Responses[query] = Block(payload, term)
	return i
}

// Block frames payload the way an instrument answers a binary data query
func Block(payload []byte, term byte) []byte {
	size := fmt.Sprint(len(payload))
	out := make([]byte, 0, 2+len(size)+len(payload)+1)
	out = append(out, '#', byte('0'+len(size)))
	out = append(out, size...)
	out = append(out, payload...)
	return append(out, term)
}

// Write records a command and queues its response, if any
func (i *Instrument) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.WriteErr != nil {
		return 0, i.WriteErr
	}
	cmd := strings.TrimRight(string(p), "\n")
	i.Log = append(i.Log, cmd)
	i.pending = nil
	i.reads = 0
	if resp, ok := i.Responses[cmd]; ok {
		i.pending = append([]byte(nil), resp...)
	} else if i.Strict && strings.Contains(cmd, "?") {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return len(p), nil
}

// Read returns the next chunk of the pending response, or io.EOF if there is none
func (i *Instrument) Read(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ReadErr != nil {
		return 0, i.ReadErr
	}
	if len(i.pending) == 0 {
		return 0, io.EOF
	}
	n := len(p)
	if len(i.Chunks) > 0 {
		idx := i.reads
		if idx >= len(i.Chunks) {
			idx = len(i.Chunks) - 1
		}
		if c := i.Chunks[idx]; c < n {
			n = c
		}
	}
	i.reads++
	n = copy(p[:n], i.pending)
	i.pending = i.pending[n:]
	return n, nil
}

// Close is a no-op so an Instrument can stand in for an opened device
func (i *Instrument) Close() error { return nil }

// Commands returns a copy of the command log
func (i *Instrument) Commands() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.Log...)
}
