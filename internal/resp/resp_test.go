package resp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

// TestRead covers every reply type the transport can receive.
func TestRead(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Value
	}{
		{name: "simple string", input: "+OK\r\n", expected: Value{Type: SimpleString, Str: "OK"}},
		{name: "error", input: "-ERR unknown command\r\n", expected: Value{Type: Error, Str: "ERR unknown command"}},
		{name: "integer", input: ":42\r\n", expected: Value{Type: Integer, Num: 42}},
		{name: "bulk string", input: "$5\r\nhello\r\n", expected: Value{Type: BulkString, Str: "hello"}},
		{name: "empty bulk string", input: "$0\r\n\r\n", expected: Value{Type: BulkString, Str: ""}},
		{name: "null bulk string", input: "$-1\r\n", expected: Value{Type: BulkString, Null: true}},
		{name: "null array", input: "*-1\r\n", expected: Value{Type: Array, Null: true}},
		{
			name:  "nested array",
			input: "*2\r\n$4\r\nPING\r\n*1\r\n:1\r\n",
			expected: Value{Type: Array, Elements: []Value{
				{Type: BulkString, Str: "PING"},
				{Type: Array, Elements: []Value{{Type: Integer, Num: 1}}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Read(reader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

// TestReadMalformed verifies protocol errors are reported, not swallowed.
func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "unknown type", input: "!oops\r\n"},
		{name: "bad integer", input: ":abc\r\n"},
		{name: "missing CR", input: "+OK\n"},
		{name: "negative bulk length", input: "$-5\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(reader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProtocol))
		})
	}
}

// TestReadTruncated verifies short input surfaces io errors.
func TestReadTruncated(t *testing.T) {
	_, err := Read(reader("$10\r\nabc"))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = Read(reader(""))
	assert.ErrorIs(t, err, io.EOF)
}

// TestCommandEncoding verifies commands are sent as arrays of bulk strings.
func TestCommandEncoding(t *testing.T) {
	assert.Equal(t, "*2\r\n$4\r\nINFO\r\n$11\r\nreplication\r\n", Encode(Command("INFO", "replication")))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Command("PING")))
	v, err := Read(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Len(t, v.Elements, 1)
	assert.Equal(t, "PING", v.Elements[0].Str)
}

// TestEncodeReplies verifies the server-side reply forms used by test nodes.
func TestEncodeReplies(t *testing.T) {
	assert.Equal(t, "+PONG\r\n", Encode(Simple("PONG")))
	assert.Equal(t, "-ERR nope\r\n", Encode(Err("ERR nope")))
	assert.Equal(t, "$3\r\nabc\r\n", Encode(Bulk("abc")))
	assert.Equal(t, ":7\r\n", Encode(Value{Type: Integer, Num: 7}))
	assert.Equal(t, "$-1\r\n", Encode(Value{Type: BulkString, Null: true}))
}

// TestText verifies string extraction and error conversion.
func TestText(t *testing.T) {
	s, err := Bulk("role:master").Text()
	require.NoError(t, err)
	assert.Equal(t, "role:master", s)

	_, err = Err("ERR boom").Text()
	assert.EqualError(t, err, "ERR boom")

	_, err = Value{Type: Integer, Num: 1}.Text()
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = Value{Type: BulkString, Null: true}.Text()
	assert.ErrorIs(t, err, ErrProtocol)

	assert.True(t, Err("x").IsError())
	assert.False(t, Simple("x").IsError())
}
