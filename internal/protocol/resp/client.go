package resp

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/planethub/planethub/pkg/svcerr"
)

// Client is a minimal RESP client used by the session multiplexer to notify
// the file service after a save, and by tests. It is not safe for concurrent
// use; callers serialise access.
type Client struct {
	conn net.Conn
	br   *bufio.Reader
}

// Dial connects to a RESP service.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, br: bufio.NewReader(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one command and reads the reply. Error replies come back as a
// coded service error.
func (c *Client) Do(verb string, args ...string) (Value, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)+1), 10)
	buf = append(buf, '\r', '\n')
	buf = appendBulk(buf, verb)
	for _, a := range args {
		buf = appendBulk(buf, a)
	}

	if _, err := c.conn.Write(buf); err != nil {
		return Value{}, fmt.Errorf("write: %w", err)
	}
	return c.readReply()
}

func appendBulk(buf []byte, s string) []byte {
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, '\r', '\n')
	buf = append(buf, s...)
	buf = append(buf, '\r', '\n')
	return buf
}

func (c *Client) readReply() (Value, error) {
	first, err := c.br.ReadByte()
	if err != nil {
		return Value{}, err
	}
	line, err := c.readLine()
	if err != nil {
		return Value{}, err
	}

	switch first {
	case '+':
		return Simple(line), nil
	case '-':
		return Value{}, parseWireError(line)
	case ':':
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid integer reply %q", line)
		}
		return Integer(n), nil
	case '$':
		n, err := strconv.Atoi(line)
		if err != nil {
			return Value{}, fmt.Errorf("invalid bulk length %q", line)
		}
		if n < 0 {
			return Null(), nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(c.br, buf); err != nil {
			return Value{}, err
		}
		return Bulk(string(buf[:n])), nil
	case '*':
		n, err := strconv.Atoi(line)
		if err != nil {
			return Value{}, fmt.Errorf("invalid array length %q", line)
		}
		if n < 0 {
			return NullArray(), nil
		}
		items := make([]Value, n)
		for i := range items {
			item, err := c.readReply()
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Array(items...), nil
	default:
		return Value{}, fmt.Errorf("unexpected reply type %q", first)
	}
}

func (c *Client) readLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// parseWireError converts a "-NNN message" reply into a coded error. Replies
// without a leading code become internal errors.
func parseWireError(line string) error {
	if code, msg, ok := strings.Cut(line, " "); ok {
		if n, err := strconv.Atoi(code); err == nil && n >= 400 && n < 700 {
			return svcerr.New(n, msg)
		}
	}
	return svcerr.Internal(line)
}
