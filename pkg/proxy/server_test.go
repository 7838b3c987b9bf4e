package proxy

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/je4/mediaport/pkg/event"
	"github.com/je4/mediaport/web"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func nopLogger() zLogger.ZLogger {
	logger := zerolog.Nop()
	return zLogger.ZLogger(&logger)
}

func newTestHub(t *testing.T, opts Options, configure ...func(*Hub)) (*Hub, *httptest.Server) {
	t.Helper()
	if opts.Addr == "" {
		opts.Addr = "localhost:0"
	}
	if opts.NumWorkers == 0 {
		opts.NumWorkers = 2
	}
	hub, err := NewHub(opts, web.StaticFS, web.TemplateFS, nopLogger())
	require.NoError(t, err)
	for _, f := range configure {
		f(hub)
	}
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		srv.Close()
		hub.connectionManager.close()
	})
	return hub, srv
}

func connect(t *testing.T, srv *httptest.Server, name string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/"+name, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitConnected(t *testing.T, hub *Hub, names ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, name := range names {
			if _, ok := hub.connectionManager.getWSConn(name); !ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) *event.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt event.Event
	require.NoError(t, conn.ReadJSON(&evt))
	return &evt
}

func TestHub_RouteToTarget(t *testing.T) {
	hub, srv := newTestHub(t, Options{Debug: true})
	display := connect(t, srv, "display01")
	controller := connect(t, srv, "controller")
	waitConnected(t, hub, "display01", "controller")

	data := json.RawMessage(`{"tag":"Seek","id":"v1","data":42}`)
	require.NoError(t, controller.WriteJSON(&event.Event{Type: event.TypeMediaCommand, Source: "someone-else", Target: "display01", Token: "t1", Data: data}))

	evt := readEvent(t, display)
	assert.Equal(t, event.TypeMediaCommand, evt.Type)
	assert.Equal(t, "controller", evt.Source, "source is the sending connection")
	assert.Equal(t, "t1", evt.Token)
	assert.JSONEq(t, string(data), string(evt.Data))
}

func TestHub_Groups(t *testing.T) {
	hub, srv := newTestHub(t, Options{Debug: true})
	d1 := connect(t, srv, "display01")
	d2 := connect(t, srv, "display02")
	controller := connect(t, srv, "controller")
	waitConnected(t, hub, "display01", "display02", "controller")

	for _, d := range []*websocket.Conn{d1, d2} {
		require.NoError(t, d.WriteJSON(&event.Event{Type: event.TypeAttach, Data: json.RawMessage(`"hall"`)}))
	}
	require.Eventually(t, func() bool { return len(hub.connectionManager.members("hall")) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, controller.WriteJSON(&event.Event{Type: event.TypeMediaCommand, Target: "hall", Data: json.RawMessage(`{"tag":"Pause","id":"v1"}`)}))
	for _, d := range []*websocket.Conn{d1, d2} {
		evt := readEvent(t, d)
		assert.Equal(t, "hall", evt.Target)
		assert.Equal(t, "controller", evt.Source)
	}

	require.NoError(t, d2.WriteJSON(&event.Event{Type: event.TypeDetach, Data: json.RawMessage(`"hall"`)}))
	require.Eventually(t, func() bool {
		members := hub.connectionManager.members("hall")
		return len(members) == 1 && members[0] == "display01"
	}, 2*time.Second, 5*time.Millisecond)

	d1.Close()
	require.Eventually(t, func() bool { return len(hub.connectionManager.members("hall")) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_NTPRelay(t *testing.T) {
	udp, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer udp.Close()
	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := udp.ReadFrom(buf)
			if err != nil {
				return
			}
			reply := append([]byte{0x24}, buf[1:n]...)
			_, _ = udp.WriteTo(reply, addr)
		}
	}()

	hub, srv := newTestHub(t, Options{Debug: true, NTPServer: udp.LocalAddr().String()})
	display := connect(t, srv, "display01")
	waitConnected(t, hub, "display01")

	query := make([]byte, ntpPacketSize)
	query[0] = 0x1b
	query[47] = 7
	raw, err := json.Marshal(query)
	require.NoError(t, err)
	require.NoError(t, display.WriteJSON(&event.Event{Type: event.TypeNTPQuery, Source: "display01", Data: raw}))

	evt := readEvent(t, display)
	require.Equal(t, event.TypeNTPResponse, evt.Type)
	data, err := evt.GetData()
	require.NoError(t, err)
	response := data.([]byte)
	require.Len(t, response, ntpPacketSize)
	assert.Equal(t, byte(0x24), response[0])
	assert.Equal(t, byte(7), response[47])
}

func TestHub_NTPError(t *testing.T) {
	hub, srv := newTestHub(t, Options{Debug: true}, func(hub *Hub) {
		hub.ntpFunc = func([]byte) ([]byte, error) { return nil, io.ErrUnexpectedEOF }
	})
	display := connect(t, srv, "display01")
	waitConnected(t, hub, "display01")

	require.NoError(t, display.WriteJSON(&event.Event{Type: event.TypeNTPQuery, Data: json.RawMessage(`"AAA="`)}))
	evt := readEvent(t, display)
	assert.Equal(t, event.TypeNTPError, evt.Type)
}

func TestHub_RequiresTLSOutsideDebug(t *testing.T) {
	_, srv := newTestHub(t, Options{})
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/display01", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_ControlPage(t *testing.T) {
	_, srv := newTestHub(t, Options{Debug: true})
	resp, err := http.Get(srv.URL + "/control/ctl01?target=display01")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/ws/ctl01")
	assert.Contains(t, string(body), `data-target="display01"`)

	static, err := http.Get(srv.URL + "/static/control.js")
	require.NoError(t, err)
	defer static.Body.Close()
	assert.Equal(t, http.StatusOK, static.StatusCode)
}

func TestHub_Echo(t *testing.T) {
	_, srv := newTestHub(t, Options{Debug: true})
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/echo", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestPeerName(t *testing.T) {
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request = httptest.NewRequest(http.MethodGet, "/ws/display01", nil)
	ctx.Request.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{
		{DNSNames: []string{"display.example.org", "ws:display01"}},
	}}
	assert.Equal(t, "display01", peerName(ctx))

	ctx.Request.TLS = &tls.ConnectionState{}
	assert.Empty(t, peerName(ctx))
}

func TestNewNTPRelay(t *testing.T) {
	relay := newNTPRelay("pool.ntp.org")
	assert.Equal(t, "pool.ntp.org", relay.Host)
	assert.Equal(t, "123", relay.Port)
	relay = newNTPRelay("127.0.0.1:1123")
	assert.Equal(t, "127.0.0.1", relay.Host)
	assert.Equal(t, "1123", relay.Port)
}
