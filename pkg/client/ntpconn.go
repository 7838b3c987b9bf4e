package client

import (
	"encoding/json"
	"net"
	"time"

	"emperror.dev/errors"
	"github.com/je4/mediaport/pkg/event"
)

// newNTPConn returns a net.Conn for the ntp client which tunnels each
// packet as an ntp-query event and reads the ntp-response events.
func newNTPConn(comm *Communication) net.Conn {
	conn := &ntpConn{
		comm: comm,
		ch:   make(chan []byte, 1),
	}
	comm.SetNTPReceiver(conn.ch)
	return conn
}

type ntpConn struct {
	comm         *Communication
	ch           chan []byte
	deadline     time.Time
	readDeadline time.Time
}

type proxyAddr string

func (a proxyAddr) Network() string { return "event" }
func (a proxyAddr) String() string  { return string(a) }

func (conn *ntpConn) Write(b []byte) (n int, err error) {
	jsonBytes, err := json.Marshal(b)
	if err != nil {
		return 0, errors.Wrapf(err, "error marshalling %s", conn.comm.name)
	}
	conn.comm.logger.Debug().Msgf("Sending ntp query to %s: %s", conn.comm.name, string(jsonBytes))
	if err := conn.comm.Send(&event.Event{
		Type:   event.TypeNTPQuery,
		Source: conn.comm.name,
		Data:   jsonBytes,
	}); err != nil {
		return 0, errors.Wrapf(err, "cannot send ntp-query event to %s", conn.comm.name)
	}
	return len(b), nil
}

func (conn *ntpConn) Close() error {
	conn.comm.RemoveNTPReceiver()
	return nil
}

func (conn *ntpConn) LocalAddr() net.Addr {
	return proxyAddr(conn.comm.name)
}

func (conn *ntpConn) RemoteAddr() net.Addr {
	return proxyAddr("proxy")
}

func (conn *ntpConn) SetDeadline(t time.Time) error {
	conn.deadline = t
	return nil
}

func (conn *ntpConn) SetReadDeadline(t time.Time) error {
	conn.readDeadline = t
	return nil
}

func (conn *ntpConn) SetWriteDeadline(time.Time) error {
	return nil
}

func (conn *ntpConn) Read(b []byte) (n int, err error) {
	var deadline time.Time
	if !conn.readDeadline.IsZero() {
		deadline = conn.readDeadline
	} else {
		deadline = conn.deadline
	}
	if deadline.IsZero() {
		ret := <-conn.ch
		return copy(b, ret), nil
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case ret := <-conn.ch:
		return copy(b, ret), nil
	case <-timer.C:
		conn.comm.logger.Error().Msgf("NTP timeout from %s", conn.comm.name)
		return 0, errors.New("timed out")
	}
}

var _ net.Conn = (*ntpConn)(nil)
