package proxy

import (
	"net"
	"time"

	"emperror.dev/errors"
	"golang.org/x/net/ipv4"
)

const ntpPacketSize = 48

// ntpRelay forwards raw ntp packets of the displays to a time server.
type ntpRelay struct {
	Host         string
	Port         string
	LocalAddress string
	TTL          int
	Timeout      time.Duration
}

func newNTPRelay(host string) *ntpRelay {
	relay := &ntpRelay{
		Host:    host,
		Port:    "123",
		Timeout: 5 * time.Second,
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		relay.Host = h
		relay.Port = p
	}
	return relay
}

func (relay *ntpRelay) query(data []byte) ([]byte, error) {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(relay.Host, relay.Port))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve ntp server %s", relay.Host)
	}
	var laddr *net.UDPAddr
	if relay.LocalAddress != "" {
		laddr, err = net.ResolveUDPAddr("udp", net.JoinHostPort(relay.LocalAddress, "0"))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot resolve local address %s", relay.LocalAddress)
		}
	}
	con, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to ntp server %s", raddr)
	}
	defer con.Close()

	if relay.TTL != 0 {
		if err := ipv4.NewConn(con).SetTTL(relay.TTL); err != nil {
			return nil, errors.Wrapf(err, "cannot set ttl %d", relay.TTL)
		}
	}
	if err := con.SetDeadline(time.Now().Add(relay.Timeout)); err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := con.Write(data); err != nil {
		return nil, errors.Wrap(err, "cannot send ntp query")
	}
	recvMsg := make([]byte, max(len(data), ntpPacketSize))
	n, err := con.Read(recvMsg)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read ntp response")
	}
	return recvMsg[:n], nil
}
