package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/je4/mediaport/pkg/event"
)

const tlsNamePrefix = "ws:"

// peerName returns the connection name granted by the client certificate,
// taken from a DNS name of the form "ws:<name>".
func peerName(ctx *gin.Context) string {
	for _, cert := range ctx.Request.TLS.PeerCertificates {
		for _, dnsName := range cert.DNSNames {
			if strings.HasPrefix(dnsName, tlsNamePrefix) {
				return strings.TrimPrefix(dnsName, tlsNamePrefix)
			}
		}
	}
	return ""
}

func (srv *Hub) ws(ctx *gin.Context) {
	var secureName string
	var name = ctx.Param("name")
	if ctx.Request.TLS != nil {
		secureName = peerName(ctx)
	} else if !srv.debug {
		srv.logger.Error().Msgf("No TLS certificate found for client %s[%s]", name, ctx.Request.RemoteAddr)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("No TLS certificate found for client %s[%s]", name, ctx.Request.RemoteAddr)})
		return
	}
	if secureName != "" && secureName != name {
		srv.logger.Error().Msgf("'%s' does not match tls name '%s'", name, secureName)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": http.StatusText(http.StatusBadRequest), "message": fmt.Sprintf("'%s' does not match tls name '%s'", name, secureName)})
		return
	}
	conn, err := srv.upgrade(ctx, name, srv.pingInterval)
	if err != nil {
		srv.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	wsConn := newConnection(conn, name, secureName != "")
	if err := srv.connectionManager.addWSConn(wsConn); err != nil {
		srv.logger.Error().Err(err).Msgf("Failed to add connection %s", name)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer srv.connectionManager.closeWSConn(wsConn)

	for {
		var evt = &event.Event{}
		if err := conn.ReadJSON(evt); err != nil {
			if websocket.IsCloseError(errors.Cause(err), websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				srv.logger.Debug().Err(err).Msgf("connection %s closed by client", name)
			} else {
				srv.logger.Error().Err(err).Msgf("Failed to read message from %s", name)
			}
			break
		}
		// the sender is whoever owns the connection
		evt.Source = name
		srv.logger.Debug().Msgf("Received event: %s", evt)
		srv.route(name, evt)
	}
}

func (srv *Hub) route(name string, evt *event.Event) {
	switch evt.Type {
	case event.TypeNTPQuery:
		srv.relayNTP(evt)
	case event.TypeAttach, event.TypeDetach:
		data, err := evt.GetData()
		if err != nil {
			srv.logger.Error().Err(err).Msgf("Failed to get group for %s event", evt.Type)
			return
		}
		group, ok := data.(string)
		if !ok || group == "" {
			srv.logger.Error().Msgf("invalid group in %s event from %s", evt.Type, name)
			return
		}
		if evt.Type == event.TypeAttach {
			srv.connectionManager.AddToGroup(name, group)
		} else {
			srv.connectionManager.RemoveFromGroup(name, group)
		}
	default:
		if err := srv.connectionManager.send(evt); err != nil {
			srv.logger.Error().Err(err).Msg("Failed to send event")
		}
	}
}

func (srv *Hub) relayNTP(evt *event.Event) {
	answer := &event.Event{Type: event.TypeNTPResponse, Target: evt.GetSource(), Token: evt.GetToken()}
	data, err := evt.GetData()
	if err == nil {
		var result []byte
		if result, err = srv.ntpFunc(data.([]byte)); err == nil {
			answer.Data, err = json.Marshal(result)
		}
	}
	if err != nil {
		srv.logger.Error().Err(err).Msgf("ntp relay for %s failed", evt.GetSource())
		answer.Type = event.TypeNTPError
		answer.Data, _ = json.Marshal(err.Error())
	}
	if err := srv.connectionManager.send(answer); err != nil {
		srv.logger.Error().Err(err).Msg("Failed to send NTP response")
	}
}
