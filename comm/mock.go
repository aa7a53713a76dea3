package comm

import (
	"bytes"
	"sync"
)

// Mock is a scripted instrument.  It records every command written to it and
// answers the ones it has a response for.  An unanswered read times out.
//
// Mock satisfies io.ReadWriteCloser and is used with WithMock or NewSession.
type Mock struct {
	// Fallback, if not empty, answers any query (a command containing '?')
	// without a scripted response
	Fallback string

	// Term ends every response, newline if zero
	Term byte

	mu        sync.Mutex
	responses map[string][]string
	handler   func(cmd string) (string, bool)
	writes    []string
	out       bytes.Buffer
	pending   []byte
	closed    int
}

// NewMock returns a Mock with no scripted responses
func NewMock() *Mock {
	return &Mock{responses: map[string][]string{}}
}

// On scripts resp as the answer to cmd.  Calling On more than once for the
// same command queues the responses; the last one repeats once the queue is drained.
func (m *Mock) On(cmd, resp string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = append(m.responses[cmd], resp)
	return m
}

// Handle installs a function consulted for commands that have no scripted
// response
func (m *Mock) Handle(f func(cmd string) (resp string, ok bool)) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = f
	return m
}

// Writes returns the commands written so far, terminators stripped
func (m *Mock) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.writes))
	copy(out, m.writes)
	return out
}

// Reset forgets the recorded commands
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}

// Closed returns how many times Close was called
func (m *Mock) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) reply(resp string) {
	term := m.Term
	if term == 0 {
		term = '\n'
	}
	m.out.WriteString(resp)
	m.out.WriteByte(term)
}

func (m *Mock) respond(cmd string) {
	if q, ok := m.responses[cmd]; ok && len(q) > 0 {
		resp := q[0]
		if len(q) > 1 {
			m.responses[cmd] = q[1:]
		}
		m.reply(resp)
		return
	}
	if m.handler != nil {
		if resp, ok := m.handler(cmd); ok {
			m.reply(resp)
			return
		}
	}
	if m.Fallback != "" && bytes.ContainsRune([]byte(cmd), '?') {
		m.reply(m.Fallback)
	}
}

// Write records commands, one per terminator, and queues their responses
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, p...)
	for {
		idx := bytes.IndexAny(m.pending, "\r\n")
		if idx < 0 {
			break
		}
		cmd := string(m.pending[:idx])
		m.pending = m.pending[idx+1:]
		if cmd == "" {
			continue
		}
		m.writes = append(m.writes, cmd)
		m.respond(cmd)
	}
	return len(p), nil
}

// Read returns queued responses, or a timeout if there are none
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out.Len() == 0 {
		return 0, gatewayTimeout{}
	}
	return m.out.Read(p)
}

// Close marks the mock closed
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}
