package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Maximum sizes accepted from the network. Oversized frames indicate either
// a broken client or a client speaking a different protocol entirely.
const (
	maxArrayLen = 1 << 16
	maxBulkLen  = 64 << 20
)

// Command is one parsed request: an upper-cased verb and its arguments.
// Arguments are binary-safe (PUT carries raw file content).
type Command struct {
	Verb string
	Args []string
}

// Reader parses commands from a client connection.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a command reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadCommand reads the next request. It accepts both RESP array framing and
// inline space-separated commands. Returns io.EOF on clean connection close.
func (r *Reader) ReadCommand() (Command, error) {
	first, err := r.br.ReadByte()
	if err != nil {
		return Command{}, err
	}

	if first != '*' {
		if err := r.br.UnreadByte(); err != nil {
			return Command{}, err
		}
		return r.readInline()
	}

	count, err := r.readLength()
	if err != nil {
		return Command{}, err
	}
	if count < 1 || count > maxArrayLen {
		return Command{}, fmt.Errorf("invalid array length %d", count)
	}

	parts := make([]string, count)
	for i := range parts {
		s, err := r.readBulk()
		if err != nil {
			return Command{}, err
		}
		parts[i] = s
	}

	return Command{Verb: strings.ToUpper(parts[0]), Args: parts[1:]}, nil
}

// readInline reads a one-line command split on spaces, for debugging with a
// plain TCP client. Empty lines are skipped.
func (r *Reader) readInline() (Command, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return Command{}, err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return Command{Verb: strings.ToUpper(fields[0]), Args: fields[1:]}, nil
	}
}

// readBulk reads one "$len\r\n<bytes>\r\n" element.
func (r *Reader) readBulk() (string, error) {
	first, err := r.br.ReadByte()
	if err != nil {
		return "", err
	}
	if first != '$' {
		return "", fmt.Errorf("expected bulk string, got %q", first)
	}
	n, err := r.readLength()
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxBulkLen {
		return "", fmt.Errorf("invalid bulk length %d", n)
	}
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return "", err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return "", fmt.Errorf("bulk string missing terminator")
	}
	return string(buf[:n]), nil
}

// readLength reads a decimal integer terminated by CRLF.
func (r *Reader) readLength() (int, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q", line)
	}
	return n, nil
}

// readLine reads up to LF and strips the trailing CR, if any.
func (r *Reader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}
