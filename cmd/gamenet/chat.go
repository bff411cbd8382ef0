package main

import (
	"time"

	"github.com/Zereker/gamenet/messenger"
	"github.com/Zereker/gamenet/serial"
)

// chatMessage is one line of chat. Servers answer it with the stored copy,
// stamped and attributed, and broadcast that copy to every client.
type chatMessage struct {
	From string
	Text string
	Sent time.Time
}

func (m *chatMessage) Serialize(w *serial.Writer) error {
	if err := w.WriteString(m.From); err != nil {
		return err
	}
	if err := w.WriteString(m.Text); err != nil {
		return err
	}
	return w.WriteTime(m.Sent)
}

func (m *chatMessage) Deserialize(r *serial.Reader) (err error) {
	if m.From, err = r.ReadString(); err != nil {
		return err
	}
	if m.Text, err = r.ReadString(); err != nil {
		return err
	}
	m.Sent, err = r.ReadTime()
	return err
}

// newRegistry returns the message registry shared by serve and dial.
func newRegistry() (*messenger.Registry, error) {
	reg, err := messenger.NewRegistry(serial.NewRegistry())
	if err != nil {
		return nil, err
	}
	if err := messenger.RegisterUser[chatMessage](reg, messenger.Named("gamenet.Chat")); err != nil {
		return nil, err
	}
	return reg, nil
}
