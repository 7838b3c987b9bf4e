package proxy

import (
	"context"
	"crypto/tls"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/je4/utils/v2/pkg/zLogger"
)

type Options struct {
	Addr         string
	ExternalAddr string
	NumWorkers   int
	NTPServer    string
	Debug        bool
}

func NewHub(opts Options, staticFS fs.FS, templateFS fs.FS, logger zLogger.ZLogger) (*Hub, error) {
	if opts.Addr == "" {
		return nil, errors.New("no listen address")
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	relay := newNTPRelay(opts.NTPServer)
	srv := &Hub{
		Addr:              opts.Addr,
		externalAddr:      opts.ExternalAddr,
		upgrader:          websocket.Upgrader{},
		logger:            logger,
		templates:         make(map[string]*template.Template),
		echoConns:         make([]*websocket.Conn, 0),
		debug:             opts.Debug,
		connectionManager: newConnectionManager(logger),
		numWorkers:        opts.NumWorkers,
		ntpFunc:           relay.query,
		templateFS:        templateFS,
		staticFS:          staticFS,
		pingInterval:      10 * time.Second,
	}
	if srv.externalAddr == "" {
		srv.externalAddr = srv.Addr
	}
	return srv, nil
}

// Hub relays events between the displays and their controllers.
type Hub struct {
	Addr              string
	externalAddr      string
	upgrader          websocket.Upgrader
	srv               *http.Server
	logger            zLogger.ZLogger
	wg                sync.WaitGroup
	templates         map[string]*template.Template
	templatesMu       sync.Mutex
	echoConns         []*websocket.Conn
	echoConnsMu       sync.Mutex
	debug             bool
	connectionManager *connectionManager
	numWorkers        int
	ntpFunc           func(data []byte) ([]byte, error)
	templateFS        fs.FS
	staticFS          fs.FS
	pingInterval      time.Duration
	startOnce         sync.Once
}

func (srv *Hub) getTemplate(name string) (*template.Template, error) {
	srv.templatesMu.Lock()
	defer srv.templatesMu.Unlock()
	if tmpl, ok := srv.templates[name]; ok {
		return tmpl, nil
	}
	tmpl, err := template.New(name).ParseFS(srv.templateFS, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse template %s", name)
	}
	if !srv.debug {
		srv.templates[name] = tmpl
	}
	return tmpl, nil
}

// Handler starts the forwarding workers and returns the router of the hub.
func (srv *Hub) Handler() http.Handler {
	srv.startOnce.Do(func() {
		srv.connectionManager.start(srv.numWorkers)
	})
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"*"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
		AllowWebSockets:  true,
	}))
	if srv.staticFS != nil {
		router.StaticFS("/static", http.FS(srv.staticFS))
	}
	router.GET("/control/:name", srv.control)
	router.GET("/echo", srv.echo)
	router.GET("/ws/:name", srv.ws)
	return router
}

// control serves the page controlling the display given by the target
// query parameter; name is the connection name of the page itself.
func (srv *Hub) control(c *gin.Context) {
	var name = c.Param("name")
	controlTemplate, err := srv.getTemplate("control.gohtml")
	if err != nil {
		srv.logger.Error().Err(err).Msgf("Failed to get template control.gohtml")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	scheme := "ws://"
	if c.Request.TLS != nil {
		scheme = "wss://"
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := controlTemplate.Execute(c.Writer, struct{ Addr, Name, Target string }{
		Addr:   scheme + c.Request.Host + "/ws/" + name,
		Name:   name,
		Target: c.DefaultQuery("target", "display"),
	}); err != nil {
		srv.logger.Error().Err(err).Msg("Failed to execute template")
	}
}

func (srv *Hub) Start(tlsConfig *tls.Config) error {
	if srv.srv != nil {
		return errors.New("server already started")
	}
	srv.srv = &http.Server{
		Addr:      srv.Addr,
		Handler:   srv.Handler(),
		TLSConfig: tlsConfig,
	}
	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		var err error
		if tlsConfig == nil {
			srv.logger.Info().Msgf("Starting server on http://%s", srv.externalAddr)
			err = srv.srv.ListenAndServe()
		} else {
			srv.logger.Info().Msgf("Starting server on https://%s", srv.externalAddr)
			err = srv.srv.ListenAndServeTLS("", "")
		}
		if !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Error().Err(err).Msg("Server error")
			return
		}
		srv.logger.Info().Msg("Server closed")
	}()
	return nil
}

func (srv *Hub) Stop() error {
	if srv.srv == nil {
		return errors.New("server not started")
	}
	srv.logger.Info().Msg("Stopping server")
	srv.echoConnsMu.Lock()
	for _, conn := range srv.echoConns {
		if err := conn.Close(); err != nil {
			srv.logger.Error().Err(err).Msg("Failed to close connection")
		}
	}
	srv.echoConns = nil
	srv.echoConnsMu.Unlock()
	srv.connectionManager.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shutdown server")
	}
	srv.wg.Wait()
	return nil
}

func (srv *Hub) addEchoConn(c *websocket.Conn) {
	srv.echoConnsMu.Lock()
	defer srv.echoConnsMu.Unlock()
	srv.echoConns = append(srv.echoConns, c)
}

func (srv *Hub) closeEchoConn(c *websocket.Conn) {
	srv.echoConnsMu.Lock()
	defer srv.echoConnsMu.Unlock()
	for i, conn := range srv.echoConns {
		if conn == c {
			srv.echoConns = append(srv.echoConns[:i], srv.echoConns[i+1:]...)
			if err := c.Close(); err != nil {
				srv.logger.Error().Err(err).Msg("Failed to close connection")
			}
			break
		}
	}
}

// upgrade turns the request into a websocket connection which is pinged
// every pingInterval until the request ends.
func (srv *Hub) upgrade(ctx *gin.Context, name string, pingInterval time.Duration) (*websocket.Conn, error) {
	conn, err := srv.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upgrade connection")
	}
	remote := ctx.Request.RemoteAddr
	conn.SetPongHandler(func(appData string) error {
		srv.logger.Debug().Msgf("Received pong from client %s[%s]: %s", name, remote, appData)
		return nil
	})
	done := ctx.Request.Context().Done()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
			case <-done:
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				srv.logger.Debug().Err(err).Msgf("stopping ping to %s[%s]", name, remote)
				return
			}
		}
	}()
	return conn, nil
}

func (srv *Hub) echo(ctx *gin.Context) {
	conn, err := srv.upgrade(ctx, "echo", srv.pingInterval)
	if err != nil {
		srv.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	srv.addEchoConn(conn)
	defer srv.closeEchoConn(conn)

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(errors.Cause(err), websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				srv.logger.Debug().Err(err).Msg("connection closed by client")
			} else {
				srv.logger.Error().Err(err).Msg("Failed to read echo message")
			}
			break
		}
		if err = conn.WriteMessage(mt, message); err != nil {
			srv.logger.Error().Err(err).Msg("Failed to write message")
			break
		}
	}
}
