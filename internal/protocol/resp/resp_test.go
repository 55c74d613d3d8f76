package resp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planethub/planethub/pkg/svcerr"
)

func TestReadCommand_Array(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("*3\r\n$3\r\nget\r\n$4\r\nu/f1\r\n$6\r\nhe\r\nlo\r\n"))
	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, "GET", cmd.Verb)
	assert.Equal(t, []string{"u/f1", "he\r\nlo"}, cmd.Args)
}

func TestReadCommand_Inline(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("\r\nstat  u/file\r\n"))
	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, "STAT", cmd.Verb)
	assert.Equal(t, []string{"u/file"}, cmd.Args)
}

func TestReadCommand_BadFraming(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("*1\r\n:5\r\n"))
	_, err := r.ReadCommand()
	assert.Error(t, err)
}

func TestValueEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"simple", Simple("PONG"), "+PONG\r\n"},
		{"error", Err("404 File not found"), "-404 File not found\r\n"},
		{"integer", Integer(42), ":42\r\n"},
		{"bulk", Bulk("hi"), "$2\r\nhi\r\n"},
		{"empty bulk", Bulk(""), "$0\r\n\r\n"},
		{"null", Null(), "$-1\r\n"},
		{"array", Array(Integer(1), Bulk("a")), "*2\r\n:1\r\n$1\r\na\r\n"},
		{"null array", NullArray(), "*-1\r\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.v.Encode()))
		})
	}
}

// echoHandler replies with its arguments and fails on demand.
type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, cmd Command) (Value, error) {
	switch cmd.Verb {
	case "PING":
		return Simple("PONG"), nil
	case "ECHO":
		return StringArray(cmd.Args...), nil
	case "FAIL":
		return Value{}, svcerr.NotFound("File not found")
	default:
		return Value{}, svcerr.BadRequest("Unknown command")
	}
}

func startTestServer(t *testing.T) string {
	t.Helper()

	srv := NewServer(ServerConfig{
		Port:       0,
		Name:       "test",
		NewHandler: func() Handler { return echoHandler{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()

	// Wait for the listener to come up.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(time.Millisecond)
	}

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return srv.Addr().String()
}

func TestServerRoundTrip(t *testing.T) {
	addr := startTestServer(t)

	client, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer client.Close()

	pong, err := client.Do("PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong.Str())

	echo, err := client.Do("ECHO", "a", "b")
	require.NoError(t, err)
	require.Len(t, echo.Items(), 2)
	assert.Equal(t, "a", echo.Items()[0].Str())

	_, err = client.Do("FAIL")
	assert.True(t, svcerr.IsCode(err, svcerr.CodeNotFound))

	_, err = client.Do("NOPE")
	assert.True(t, svcerr.IsCode(err, svcerr.CodeBadRequest))
}
