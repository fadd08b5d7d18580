package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tribfs"
)

// encodeAttr/decodeAttr serialize an Attr into the wire message's opaque
// "message" string field. A small pipe-delimited record is enough here —
// Attr carries no nested structure beyond the xattr map, and that map
// travels separately through Set/GetXattr, never through AttrReply.
func encodeAttr(a tribfs.Attr) (string, error) {
	fields := []string{
		strconv.FormatUint(a.Ino, 10),
		strconv.FormatUint(uint64(a.Kind), 10),
		strconv.FormatUint(uint64(a.Mode), 10),
		strconv.FormatUint(uint64(a.UID), 10),
		strconv.FormatUint(uint64(a.GID), 10),
		strconv.FormatUint(a.Size, 10),
		strconv.FormatUint(uint64(a.Nlink), 10),
		strconv.FormatInt(a.Atime.UnixNano(), 10),
		strconv.FormatInt(a.Mtime.UnixNano(), 10),
		strconv.FormatInt(a.Ctime.UnixNano(), 10),
		strconv.FormatUint(uint64(a.OpenHandle), 10),
	}
	return strings.Join(fields, "|"), nil
}

func decodeAttr(s string) (tribfs.Attr, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 11 {
		return tribfs.Attr{}, fmt.Errorf("decode attr: expected 11 fields, got %d", len(parts))
	}
	var vals [7]uint64
	for i := 0; i < 7; i++ {
		v, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return tribfs.Attr{}, fmt.Errorf("decode attr field %d: %w", i, err)
		}
		vals[i] = v
	}
	atime, err := strconv.ParseInt(parts[7], 10, 64)
	if err != nil {
		return tribfs.Attr{}, fmt.Errorf("decode attr atime: %w", err)
	}
	mtime, err := strconv.ParseInt(parts[8], 10, 64)
	if err != nil {
		return tribfs.Attr{}, fmt.Errorf("decode attr mtime: %w", err)
	}
	ctime, err := strconv.ParseInt(parts[9], 10, 64)
	if err != nil {
		return tribfs.Attr{}, fmt.Errorf("decode attr ctime: %w", err)
	}
	openHandle, err := strconv.ParseUint(parts[10], 10, 32)
	if err != nil {
		return tribfs.Attr{}, fmt.Errorf("decode attr open handle: %w", err)
	}
	return tribfs.Attr{
		Ino:        vals[0],
		Kind:       tribfs.InodeKind(vals[1]),
		Mode:       uint32(vals[2]),
		UID:        uint32(vals[3]),
		GID:        uint32(vals[4]),
		Size:       vals[5],
		Nlink:      uint32(vals[6]),
		Atime:      time.Unix(0, atime),
		Mtime:      time.Unix(0, mtime),
		Ctime:      time.Unix(0, ctime),
		OpenHandle: uint32(openHandle),
	}, nil
}
