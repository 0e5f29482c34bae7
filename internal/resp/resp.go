// Package resp implements the subset of the RESP2 wire format needed to talk
// to replication-group nodes: commands go out as arrays of bulk strings and
// every reply type can be read back.
package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RESP type markers.
const (
	SimpleString = '+'
	Error        = '-'
	Integer      = ':'
	BulkString   = '$'
	Array        = '*'
)

// ErrProtocol is returned for malformed input.
var ErrProtocol = errors.New("resp: protocol error")

// Value is one RESP value. Null bulk strings and null arrays have Null set.
type Value struct {
	Str      string
	Elements []Value
	Num      int64
	Type     byte
	Null     bool
}

// Command builds the array-of-bulk-strings form of a command.
func Command(args ...string) Value {
	elems := make([]Value, len(args))
	for i, a := range args {
		elems[i] = Value{Type: BulkString, Str: a}
	}
	return Value{Type: Array, Elements: elems}
}

// Simple returns a simple string value.
func Simple(s string) Value { return Value{Type: SimpleString, Str: s} }

// Bulk returns a bulk string value.
func Bulk(s string) Value { return Value{Type: BulkString, Str: s} }

// Err returns an error value.
func Err(msg string) Value { return Value{Type: Error, Str: msg} }

// IsError reports whether the value is a RESP error reply.
func (v Value) IsError() bool { return v.Type == Error }

// Text returns the string payload of simple and bulk strings.
func (v Value) Text() (string, error) {
	switch v.Type {
	case SimpleString, BulkString:
		if v.Null {
			return "", fmt.Errorf("%w: null bulk string", ErrProtocol)
		}
		return v.Str, nil
	case Error:
		return "", errors.New(v.Str)
	default:
		return "", fmt.Errorf("%w: expected string, got %q", ErrProtocol, v.Type)
	}
}

// Read parses a single value from r.
func Read(r *bufio.Reader) (Value, error) {
	t, err := r.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch t {
	case SimpleString, Error:
		line, err := readLine(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Str: line}, nil

	case Integer:
		n, err := readInt(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: Integer, Num: n}, nil

	case BulkString:
		size, err := readInt(r)
		if err != nil {
			return Value{}, err
		}
		if size == -1 {
			return Value{Type: BulkString, Null: true}, nil
		}
		if size < 0 {
			return Value{}, fmt.Errorf("%w: bulk length %d", ErrProtocol, size)
		}
		data := make([]byte, size+2) // +2 for CRLF
		if _, err := io.ReadFull(r, data); err != nil {
			return Value{}, err
		}
		return Value{Type: BulkString, Str: string(data[:size])}, nil

	case Array:
		count, err := readInt(r)
		if err != nil {
			return Value{}, err
		}
		if count == -1 {
			return Value{Type: Array, Null: true}, nil
		}
		if count < 0 {
			return Value{}, fmt.Errorf("%w: array length %d", ErrProtocol, count)
		}
		elems := make([]Value, count)
		for i := range elems {
			elems[i], err = Read(r)
			if err != nil {
				return Value{}, err
			}
		}
		return Value{Type: Array, Elements: elems}, nil

	default:
		return Value{}, fmt.Errorf("%w: unknown type %q", ErrProtocol, t)
	}
}

// Write encodes v to w.
func Write(w io.Writer, v Value) error {
	_, err := io.WriteString(w, Encode(v))
	return err
}

// Encode renders v in wire form.
func Encode(v Value) string {
	var b strings.Builder
	encode(&b, v)
	return b.String()
}

func encode(b *strings.Builder, v Value) {
	switch v.Type {
	case SimpleString, Error:
		b.WriteByte(v.Type)
		b.WriteString(v.Str)
		b.WriteString("\r\n")
	case Integer:
		b.WriteByte(Integer)
		b.WriteString(strconv.FormatInt(v.Num, 10))
		b.WriteString("\r\n")
	case BulkString:
		if v.Null {
			b.WriteString("$-1\r\n")
			return
		}
		fmt.Fprintf(b, "$%d\r\n%s\r\n", len(v.Str), v.Str)
	case Array:
		if v.Null {
			b.WriteString("*-1\r\n")
			return
		}
		fmt.Fprintf(b, "*%d\r\n", len(v.Elements))
		for _, e := range v.Elements {
			encode(b, e)
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(line, "\r\n") {
		return "", fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	}
	return strings.TrimSuffix(line, "\r\n"), nil
}

func readInt(r *bufio.Reader) (int64, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad integer %q", ErrProtocol, line)
	}
	return n, nil
}
