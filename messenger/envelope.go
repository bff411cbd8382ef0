package messenger

import (
	"github.com/pkg/errors"

	"github.com/Zereker/gamenet/serial"
)

// Kind tells simple messages from responses.
type Kind uint8

const (
	KindSimple   Kind = 0
	KindResponse Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// EnvelopeSize is the length of the header preceding every message body.
const EnvelopeSize = 5

type header struct {
	kind Kind
	hash uint16
	id   uint16
}

func writeHeader(w *serial.Writer, h header) error {
	if err := w.WriteByte(byte(h.kind)); err != nil {
		return err
	}
	if err := w.WriteUint16(h.hash); err != nil {
		return err
	}
	return w.WriteUint16(h.id)
}

func readHeader(r *serial.Reader) (header, error) {
	var h header

	kind, err := r.ReadByte()
	if err != nil {
		return h, errors.Wrap(err, "read kind")
	}
	h.kind = Kind(kind)
	if h.kind != KindSimple && h.kind != KindResponse {
		return h, errors.Wrapf(ErrUnknownKind, "%d", kind)
	}
	if h.hash, err = r.ReadUint16(); err != nil {
		return h, errors.Wrap(err, "read hash")
	}
	if h.id, err = r.ReadUint16(); err != nil {
		return h, errors.Wrap(err, "read id")
	}
	return h, nil
}
