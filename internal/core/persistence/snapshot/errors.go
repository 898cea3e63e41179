package snapshot

import "errors"

var (
	ErrNoBaseline          = errors.New("no baseline established")
	ErrStaleInterval       = errors.New("interval is older than the last one applied")
	ErrNoSave              = errors.New("no save file")
	ErrMalformedSave       = errors.New("malformed save file")
	ErrUnsupportedFormat   = errors.New("unsupported save format")
	ErrChecksumMismatch    = errors.New("save checksum mismatch")
	ErrUnknownComponent    = errors.New("unknown component")
	ErrEntityCountMismatch = errors.New("save entity count mismatch")
)
