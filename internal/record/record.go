// Package record implements the fake-ownership record grootfs stores
// as a single extended attribute on every backing filesystem object.
package record

import (
	"encoding/binary"
	"fmt"
)

// Name is the backing xattr key the record is stored under.
const Name = "user.grootfs"

// Size is the fixed on-disk size of an encoded Record.
const Size = 16

// Flag is a bit in Record.Flags indicating which fields are authoritative.
type Flag uint32

const (
	UIDSet Flag = 1 << iota
	GIDSet
	ModeSet
)

// Record is the packed fake-ownership tuple. Zero value is the "no
// override" record: every field falls through to the backing file's
// real values.
type Record struct {
	Flags Flag
	UID   uint32
	GID   uint32
	Mode  uint32
}

// Encode packs r into its fixed 16-byte big-endian wire form.
func (r Record) Encode() []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(r.Flags))
	binary.BigEndian.PutUint32(buf[4:8], r.UID)
	binary.BigEndian.PutUint32(buf[8:12], r.GID)
	binary.BigEndian.PutUint32(buf[12:16], r.Mode)
	return buf
}

// Decode unpacks a Record from its wire form. A buffer of any size
// other than Size is an internal consistency error; callers that read
// "no such attribute" map that to the zero Record before calling Decode.
func Decode(buf []byte) (Record, error) {
	if len(buf) != Size {
		return Record{}, fmt.Errorf("grootfs: record has wrong size %d, want %d", len(buf), Size)
	}
	return Record{
		Flags: Flag(binary.BigEndian.Uint32(buf[0:4])),
		UID:   binary.BigEndian.Uint32(buf[4:8]),
		GID:   binary.BigEndian.Uint32(buf[8:12]),
		Mode:  binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

func (r Record) HasUID() bool  { return r.Flags&UIDSet != 0 }
func (r Record) HasGID() bool  { return r.Flags&GIDSet != 0 }
func (r Record) HasMode() bool { return r.Flags&ModeSet != 0 }

// WithUID returns a copy of r with UID set and the UIDSet flag raised.
func (r Record) WithUID(uid uint32) Record {
	r.UID = uid
	r.Flags |= UIDSet
	return r
}

// WithGID returns a copy of r with GID set and the GIDSet flag raised.
func (r Record) WithGID(gid uint32) Record {
	r.GID = gid
	r.Flags |= GIDSet
	return r
}

// WithMode returns a copy of r with Mode set and the ModeSet flag raised.
func (r Record) WithMode(mode uint32) Record {
	r.Mode = mode
	r.Flags |= ModeSet
	return r
}
