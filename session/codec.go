package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Blob layout, version 1:
//
//	[0]    format version
//	[1]    revoked flag (0|1), fixed offset, patched in place by Lua
//	[2..]  length-prefixed ID, UserID, Role (1-byte lengths)
//	       CSRF fingerprint (32) | IP hash (32) | User-Agent hash (32)
//	       CreatedAt | UpdatedAt | ExpiresAt | LineageStart (int64 BE)
const sessionFormatVersion = 1

const (
	flagActive  = 0
	flagRevoked = 1
)

// ErrCorruptRecord is returned when a stored session blob cannot be
// decoded.
var ErrCorruptRecord = errors.New("corrupt session record")

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersion)
	if s.Revoked {
		buf.WriteByte(flagRevoked)
	} else {
		buf.WriteByte(flagActive)
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"session ID", s.ID},
		{"user ID", s.UserID},
		{"role", s.Role},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	buf.Write(s.CSRFFingerprint[:])
	buf.Write(s.IPHash[:])
	buf.Write(s.UserAgentHash[:])

	for _, ts := range []int64{s.CreatedAt, s.UpdatedAt, s.ExpiresAt, s.LineageStart} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != sessionFormatVersion {
		return nil, ErrCorruptRecord
	}

	flag, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}

	s := &Session{Revoked: flag == flagRevoked}

	for _, dst := range []*string{&s.ID, &s.UserID, &s.Role} {
		strLen, err := reader.ReadByte()
		if err != nil {
			return nil, ErrCorruptRecord
		}
		raw := make([]byte, strLen)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, ErrCorruptRecord
		}
		*dst = string(raw)
	}

	for _, dst := range [][]byte{s.CSRFFingerprint[:], s.IPHash[:], s.UserAgentHash[:]} {
		if _, err := io.ReadFull(reader, dst); err != nil {
			return nil, ErrCorruptRecord
		}
	}

	for _, dst := range []*int64{&s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt, &s.LineageStart} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, ErrCorruptRecord
		}
	}

	return s, nil
}
