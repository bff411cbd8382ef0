package messenger

import (
	"time"

	"github.com/Zereker/gamenet/serial"
)

// AuthMessage carries a client credential. Servers answer it with Respond or
// RespondError.
type AuthMessage struct {
	Token string
}

func (m *AuthMessage) Serialize(w *serial.Writer) error {
	return w.WriteString(m.Token)
}

func (m *AuthMessage) Deserialize(r *serial.Reader) (err error) {
	m.Token, err = r.ReadString()
	return err
}

// PingMessage asks the peer for a PongMessage echoing Timestamp.
type PingMessage struct {
	Timestamp time.Time
}

func (m *PingMessage) Serialize(w *serial.Writer) error {
	return w.WriteTime(m.Timestamp)
}

func (m *PingMessage) Deserialize(r *serial.Reader) (err error) {
	m.Timestamp, err = r.ReadTime()
	return err
}

// PongMessage answers a PingMessage.
type PongMessage struct {
	Timestamp time.Time
}

func (m *PongMessage) Serialize(w *serial.Writer) error {
	return w.WriteTime(m.Timestamp)
}

func (m *PongMessage) Deserialize(r *serial.Reader) (err error) {
	m.Timestamp, err = r.ReadTime()
	return err
}

// KickMessage tells a client it is about to be disconnected.
type KickMessage struct {
	Reason string
}

func (m *KickMessage) Serialize(w *serial.Writer) error {
	return w.WriteString(m.Reason)
}

func (m *KickMessage) Deserialize(r *serial.Reader) (err error) {
	m.Reason, err = r.ReadString()
	return err
}
