package log

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformedEvent is returned when journal bytes do not decode to an Event.
var ErrMalformedEvent = errors.New("malformed journal event")

// Journal entries are written with canonical key order and RFC 3339 times
// so that two nodes recording the same event produce identical bytes.
var (
	journalEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})

	// Entries come from a file that may be truncated or foreign, so
	// nesting and container sizes are bounded.
	journalDec = mustDecMode(cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyQuiet,
		IndefLength:      cbor.IndefLengthAllowed,
		MaxNestedLevels:  16,
		MaxArrayElements: 4096,
		MaxMapPairs:      4096,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor encoder options: %v", err))
	}
	return em
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor decoder options: %v", err))
	}
	return dm
}

// EncodeEvent encodes one journal event.
func EncodeEvent(event Event) ([]byte, error) {
	return journalEnc.Marshal(event)
}

// DecodeEvent decodes one journal event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := journalDec.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return event, nil
}

// NewEncoder returns a stream encoder appending journal events to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return journalEnc.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading journal events from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return journalDec.NewDecoder(r)
}
