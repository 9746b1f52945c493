package tcp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// ReadBufferSize caps the first protocol line read from a connection.
const ReadBufferSize = 1024

// ErrLineTooLong is returned by ReadLine when no terminator arrives within ReadBufferSize bytes.
var ErrLineTooLong = errors.New("protocol line exceeds read buffer")

// SendStream writes all of b to w.
func SendStream(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// ReadStream performs one read of at most ReadBufferSize bytes and returns
// them as text with the line terminator trimmed. A peer that writes its whole
// line in a single write is understood whether or not it terminates it.
func ReadStream(r io.Reader) (string, error) {
	buf := make([]byte, ReadBufferSize)
	n, err := r.Read(buf)
	if n > 0 {
		return strings.TrimRight(string(buf[:n]), "\r\n"), nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return "", err
}

// NewLineReader wraps conn so that the first line can be read without losing
// payload bytes that arrive in the same segment.
func NewLineReader(conn io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(conn, ReadBufferSize)
}

// ReadLine reads one newline terminated line. A final unterminated line
// followed by EOF is returned as is.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadSlice('\n')
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrLineTooLong
	case errors.Is(err, io.EOF) && len(line) > 0:
	default:
		return "", err
	}
	return string(bytes.TrimRight(line, "\r\n")), nil
}

type idleConn struct {
	net.Conn
	timeout time.Duration
}

// WithIdleTimeout returns conn with every Read and Write bounded by timeout
// since the previous operation, so long transfers survive while stalled peers
// do not. A zero timeout returns conn unchanged.
func WithIdleTimeout(conn net.Conn, timeout time.Duration) net.Conn {
	if timeout <= 0 {
		return conn
	}
	return &idleConn{Conn: conn, timeout: timeout}
}

func (c *idleConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *idleConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
