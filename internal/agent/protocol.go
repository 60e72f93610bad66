// Package agent answers passive checks from a monitoring server. Each
// connection carries one item key request and receives one value.
package agent

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Header layout: "ZBXD", a flags byte, then the data length and a reserved
// word, both little-endian uint32.
const (
	headerMagic = "ZBXD"
	headerSize  = len(headerMagic) + 1 + 4 + 4

	flagStandard   byte = 0x01
	flagCompressed byte = 0x02
	flagLarge      byte = 0x04

	// MaxRequestSize bounds the data length a framed request may declare.
	MaxRequestSize = 64 << 10

	notSupported = "ZBX_NOTSUPPORTED"
)

var (
	// ErrRequestTooLarge is returned for requests above MaxRequestSize, or
	// legacy lines that do not fit the read buffer.
	ErrRequestTooLarge = errors.New("request too large")
	// ErrUnsupportedFlags is returned for compressed or large packets.
	ErrUnsupportedFlags = errors.New("unsupported protocol flags")
	// ErrMalformedKey is returned by ParseItemKey.
	ErrMalformedKey = errors.New("invalid item key format")
)

// ReadRequest reads one request from r. Framed packets and legacy
// newline-terminated lines are both accepted.
func ReadRequest(r *bufio.Reader) (string, error) {
	// Peek one byte at a time so a short line is never held waiting for
	// bytes the client has no reason to send.
	for n := 1; n <= len(headerMagic); n++ {
		peek, err := r.Peek(n)
		if len(peek) < n {
			if len(peek) == 0 {
				return "", err
			}
			return readLine(r)
		}
		if peek[n-1] != headerMagic[n-1] {
			return readLine(r)
		}
	}
	return readFramed(r)
}

func readFramed(r *bufio.Reader) (string, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", fmt.Errorf("reading header: %w", err)
	}

	flags := hdr[len(headerMagic)]
	if flags&flagStandard == 0 || flags&(flagCompressed|flagLarge) != 0 {
		return "", fmt.Errorf("%w: 0x%02x", ErrUnsupportedFlags, flags)
	}

	size := binary.LittleEndian.Uint32(hdr[len(headerMagic)+1:])
	if size > MaxRequestSize {
		return "", fmt.Errorf("%w: %d bytes", ErrRequestTooLarge, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", fmt.Errorf("reading data: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrRequestTooLarge
	case errors.Is(err, io.EOF) && len(line) > 0:
		// Some clients close their write side without a newline.
	case err != nil:
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

// WriteResponse writes payload as a framed packet.
func WriteResponse(w io.Writer, payload string) error {
	var hdr [headerSize]byte
	copy(hdr[:], headerMagic)
	hdr[len(headerMagic)] = flagStandard
	binary.LittleEndian.PutUint32(hdr[len(headerMagic)+1:], uint32(len(payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, payload)
	return err
}

// NotSupported formats a failure payload carrying msg.
func NotSupported(msg string) string {
	return notSupported + "\x00" + msg
}

// ParseItemKey splits an item key of the form name[p1,p2,...] into its
// name and parameters. A key without brackets has nil parameters; "name[]"
// has one empty parameter. Parameters may be double-quoted, with \" as an
// escaped quote inside.
func ParseItemKey(s string) (string, []string, error) {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if !validKeyName(s) {
			return "", nil, ErrMalformedKey
		}
		return s, nil, nil
	}

	name := s[:open]
	if !validKeyName(name) || !strings.HasSuffix(s, "]") {
		return "", nil, ErrMalformedKey
	}

	params, err := parseParams(s[open+1 : len(s)-1])
	if err != nil {
		return "", nil, err
	}
	return name, params, nil
}

func validKeyName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

func parseParams(s string) ([]string, error) {
	var params []string
	i := 0
	for {
		for i < len(s) && s[i] == ' ' {
			i++
		}

		var param string
		if i < len(s) && s[i] == '"' {
			var b strings.Builder
			i++
			for {
				if i >= len(s) {
					return nil, ErrMalformedKey
				}
				if s[i] == '\\' && i+1 < len(s) && s[i+1] == '"' {
					b.WriteByte('"')
					i += 2
					continue
				}
				if s[i] == '"' {
					i++
					break
				}
				b.WriteByte(s[i])
				i++
			}
			param = b.String()
			for i < len(s) && s[i] == ' ' {
				i++
			}
			if i < len(s) && s[i] != ',' {
				return nil, ErrMalformedKey
			}
		} else {
			end := strings.IndexByte(s[i:], ',')
			if end < 0 {
				end = len(s) - i
			}
			param = strings.TrimSpace(s[i : i+end])
			if strings.ContainsAny(param, `"[]`) {
				return nil, ErrMalformedKey
			}
			i += end
		}

		params = append(params, param)
		if i >= len(s) {
			return params, nil
		}
		// s[i] is the separating comma
		i++
	}
}
