package client

import (
	"net"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/beevik/ntp"
	"github.com/gorilla/websocket"
	"github.com/je4/mediaport/pkg/event"
	"github.com/je4/utils/v2/pkg/zLogger"
)

type recFuncType func(evt *event.Event)

func NewCommunication(proxy *websocket.Conn, name string, logger zLogger.ZLogger) *Communication {
	return &Communication{
		proxyConn: proxy,
		name:      name,
		logger:    logger,
		wg:        sync.WaitGroup{},
		done:      make(chan struct{}),
	}
}

// Communication is the display side of the proxy connection. Incoming
// events are handed to the receiver one by one, in arrival order.
type Communication struct {
	proxyConn *websocket.Conn
	name      string
	recFunc   recFuncType
	recMu     sync.RWMutex
	logger    zLogger.ZLogger
	wg        sync.WaitGroup
	writeMu   sync.Mutex
	ntpConn   chan<- []byte
	ntpMu     sync.Mutex
	done      chan struct{}
}

func (comm *Communication) Name() string {
	return comm.name
}

func (comm *Communication) SetNTPReceiver(ch chan<- []byte) {
	comm.ntpMu.Lock()
	defer comm.ntpMu.Unlock()
	comm.ntpConn = ch
}

func (comm *Communication) RemoveNTPReceiver() {
	comm.ntpMu.Lock()
	defer comm.ntpMu.Unlock()
	comm.ntpConn = nil
}

func (comm *Communication) forwardNTP(evt *event.Event) {
	comm.ntpMu.Lock()
	defer comm.ntpMu.Unlock()
	if comm.ntpConn == nil {
		comm.logger.Debug().Msgf("no ntp receiver for %s from %s", evt.GetType(), evt.GetSource())
		return
	}
	if evt.GetType() == event.TypeNTPError {
		comm.logger.Error().Msgf("ntp error from proxy: %s", evt.Data)
		return
	}
	data, err := evt.GetData()
	if err != nil {
		comm.logger.Error().Err(err).Msgf("cannot read ntp event: %s", comm.name)
		return
	}
	select {
	case comm.ntpConn <- data.([]byte):
	default:
		comm.logger.Warn().Msgf("dropping unexpected ntp response for %s", comm.name)
	}
}

func (comm *Communication) Start() error {
	comm.wg.Add(1)
	go func() {
		defer func() {
			comm.logger.Info().Msgf("closing connection: %s", comm.name)
			if err := comm.proxyConn.Close(); err != nil {
				comm.logger.Error().Err(err).Msgf("cannot close connection: %s", comm.name)
			}
			close(comm.done)
			comm.wg.Done()
		}()
		for {
			evt, err := comm.Receive()
			if err != nil {
				cause := errors.Cause(err)
				if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
					comm.logger.Debug().Err(err).Msgf("connection closed: %s", comm.name)
					return
				}
				if websocket.IsUnexpectedCloseError(cause, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
					comm.logger.Debug().Err(err).Msgf("unexpected close error: %s", comm.name)
					return
				}
				var netErr net.Error
				if errors.As(cause, &netErr) || errors.Is(cause, net.ErrClosed) {
					comm.logger.Debug().Err(err).Msgf("connection lost: %s", comm.name)
					return
				}
				comm.logger.Error().Err(err).Msgf("cannot read event: %s", comm.name)
				continue
			}
			comm.logger.Debug().Msgf("received event from %s: %s", evt.GetSource(), evt.Type)
			switch evt.Type {
			case event.TypeNTPResponse, event.TypeNTPError:
				comm.forwardNTP(evt)
			default:
				comm.recMu.RLock()
				recFunc := comm.recFunc
				comm.recMu.RUnlock()
				if recFunc != nil {
					recFunc(evt)
				} else {
					comm.logger.Debug().Msgf("no receiver function set for event: %s", comm.name)
				}
			}
		}
	}()
	return nil
}

// Done is closed when the receive loop has ended.
func (comm *Communication) Done() <-chan struct{} {
	return comm.done
}

func (comm *Communication) Stop() error {
	deadline := time.Now().Add(10 * time.Second)
	comm.writeMu.Lock()
	err := comm.proxyConn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	comm.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return errors.Wrapf(err, "cannot send close message: %s", comm.name)
	}
	closeChan := make(chan struct{})
	go func() {
		defer close(closeChan)
		comm.wg.Wait()
	}()
	select {
	case <-closeChan:
	case <-time.After(time.Second * 10):
		comm.logger.Warn().Msgf("timeout waiting for connection to close: %s", comm.name)
		if err := comm.proxyConn.Close(); err != nil {
			return errors.Wrapf(err, "cannot close connection: %s", comm.name)
		}
	}
	return nil
}

// On sets the receiver for all events except ntp traffic.
func (comm *Communication) On(recFunc func(evt *event.Event)) {
	comm.recMu.Lock()
	defer comm.recMu.Unlock()
	comm.recFunc = recFunc
}

func (comm *Communication) Receive() (*event.Event, error) {
	var evt event.Event
	if err := comm.proxyConn.ReadJSON(&evt); err != nil {
		return nil, errors.Wrapf(err, "cannot read event")
	}
	return &evt, nil
}

func (comm *Communication) Send(evt *event.Event) error {
	evt.Source = comm.name
	comm.writeMu.Lock()
	defer comm.writeMu.Unlock()
	if err := comm.proxyConn.WriteJSON(evt); err != nil {
		return errors.Wrapf(err, "cannot send event: %v", evt)
	}
	return nil
}

// SendData wraps data into an event for target and sends it.
func (comm *Communication) SendData(data event.DataInterface, target, token string) error {
	evt, err := event.NewEvent(data, target, token)
	if err != nil {
		return errors.Wrapf(err, "cannot create event: %v", data)
	}
	return comm.Send(evt)
}

// NTP measures the clock offset to the proxy's time server. The ntp
// packets travel as events through the proxy connection.
func (comm *Communication) NTP() (time.Duration, error) {
	conn := newNTPConn(comm)
	defer conn.Close()
	options := ntp.QueryOptions{
		Timeout: 30 * time.Second,
		Dialer: func(localAddress, remoteAddress string) (net.Conn, error) {
			return conn, nil
		},
	}
	response, err := ntp.QueryWithOptions("proxy", options)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot send NTP request")
	}
	if err := response.Validate(); err != nil {
		return 0, errors.Wrap(err, "invalid NTP response")
	}
	comm.logger.Info().Msgf("NTP clock offset: %s", response.ClockOffset)
	return response.ClockOffset, nil
}
