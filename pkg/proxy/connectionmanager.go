package proxy

import (
	"slices"
	"sync"

	"emperror.dev/errors"
	"github.com/je4/mediaport/pkg/event"
	"github.com/je4/utils/v2/pkg/zLogger"
)

func newConnectionManager(logger zLogger.ZLogger) *connectionManager {
	return &connectionManager{
		wsConns:       make(map[string]*connection),
		groups:        make(map[string][]string),
		logger:        logger,
		senderChannel: make(chan *job, 100),
	}
}

type job struct {
	evt  *event.Event
	dest string
}

// connectionManager keeps the named connections and groups of the hub and
// forwards events with a pool of workers.
type connectionManager struct {
	wsConns       map[string]*connection
	wsConnsMu     sync.Mutex
	groups        map[string][]string
	groupsMu      sync.RWMutex
	logger        zLogger.ZLogger
	senderChannel chan *job
	workerWG      sync.WaitGroup
	closed        bool
	closedMu      sync.RWMutex
}

func (manager *connectionManager) start(numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		manager.logger.Debug().Msgf("Starting worker #%d", i)
		manager.workerWG.Add(1)
		go manager.worker(i, manager.senderChannel)
	}
}

func (manager *connectionManager) close() {
	manager.closedMu.Lock()
	if manager.closed {
		manager.closedMu.Unlock()
		return
	}
	manager.closed = true
	close(manager.senderChannel)
	manager.closedMu.Unlock()
	manager.workerWG.Wait()

	manager.wsConnsMu.Lock()
	defer manager.wsConnsMu.Unlock()
	for name, conn := range manager.wsConns {
		if err := conn.Close(); err != nil {
			manager.logger.Debug().Err(err).Msgf("cannot close connection %s", name)
		}
		delete(manager.wsConns, name)
	}
}

func (manager *connectionManager) worker(id int, jobs <-chan *job) {
	defer manager.workerWG.Done()
	for j := range jobs {
		if err := manager.sendWS(j.dest, j.evt); err != nil {
			manager.logger.Error().Err(err).Msgf("worker #%d failed to send event", id)
			continue
		}
		manager.logger.Debug().Msgf("worker #%d forwarded %s %s -> %s to %s", id, j.evt.Type, j.evt.GetSource(), j.evt.GetTarget(), j.dest)
	}
}

// send queues evt for its target. A target naming a group reaches every
// member of the group.
func (manager *connectionManager) send(evt *event.Event) error {
	dests := manager.members(evt.GetTarget())
	if len(dests) == 0 {
		dests = []string{evt.GetTarget()}
	}
	manager.closedMu.RLock()
	defer manager.closedMu.RUnlock()
	if manager.closed {
		return errors.Errorf("hub closed, dropping %s to %s", evt.GetType(), evt.GetTarget())
	}
	for _, dest := range dests {
		manager.senderChannel <- &job{evt: evt, dest: dest}
	}
	return nil
}

func (manager *connectionManager) sendWS(dest string, evt *event.Event) error {
	conn, ok := manager.getWSConn(dest)
	if !ok {
		return errors.Errorf("no connection for destination %s", dest)
	}
	if err := conn.send(evt); err != nil {
		return errors.Wrapf(err, "failed to send event %s to %s->%s", evt.GetType(), evt.GetSource(), evt.GetTarget())
	}
	return nil
}

// addWSConn registers c under its name. An existing connection with the
// same name is closed, unless it is secure and c is not.
func (manager *connectionManager) addWSConn(c *connection) error {
	manager.wsConnsMu.Lock()
	defer manager.wsConnsMu.Unlock()
	if conn, ok := manager.wsConns[c.Name]; ok {
		if conn.Secure && !c.Secure {
			return errors.Errorf("cannot replace secure connection %s with an insecure connection", c.Name)
		}
		manager.logger.Warn().Msgf("replacing connection %s", c.Name)
		if err := conn.Close(); err != nil {
			manager.logger.Debug().Err(err).Msgf("cannot close replaced connection %s", c.Name)
		}
	}
	manager.logger.Debug().Msgf("Adding connection %s", c.Name)
	manager.wsConns[c.Name] = c
	return nil
}

func (manager *connectionManager) getWSConn(name string) (*connection, bool) {
	manager.wsConnsMu.Lock()
	defer manager.wsConnsMu.Unlock()
	conn, ok := manager.wsConns[name]
	return conn, ok
}

// closeWSConn closes wsConn and forgets it, unless it has been replaced in
// the meantime. Group memberships end with the connection.
func (manager *connectionManager) closeWSConn(wsConn *connection) {
	manager.wsConnsMu.Lock()
	conn, ok := manager.wsConns[wsConn.Name]
	current := ok && conn == wsConn
	if current {
		delete(manager.wsConns, wsConn.Name)
	}
	manager.wsConnsMu.Unlock()
	if err := wsConn.Close(); err != nil {
		manager.logger.Debug().Err(err).Msgf("closing connection %s", wsConn.Name)
	}
	if !current {
		manager.logger.Debug().Msgf("connection %s[%s] already replaced", wsConn.Name, wsConn.Conn.RemoteAddr())
		return
	}
	manager.RemoveFromGroups(wsConn.Name)
}

func (manager *connectionManager) AddToGroup(name string, group string) {
	manager.groupsMu.Lock()
	defer manager.groupsMu.Unlock()
	if !slices.Contains(manager.groups[group], name) {
		manager.groups[group] = append(manager.groups[group], name)
	}
}

func (manager *connectionManager) RemoveFromGroup(name string, group string) {
	manager.groupsMu.Lock()
	defer manager.groupsMu.Unlock()
	manager.removeFromGroup(name, group)
}

func (manager *connectionManager) RemoveFromGroups(name string) {
	manager.groupsMu.Lock()
	defer manager.groupsMu.Unlock()
	for group := range manager.groups {
		manager.removeFromGroup(name, group)
	}
}

func (manager *connectionManager) removeFromGroup(name string, group string) {
	members := slices.DeleteFunc(manager.groups[group], func(s string) bool {
		return s == name
	})
	if len(members) == 0 {
		delete(manager.groups, group)
		return
	}
	manager.groups[group] = members
}

func (manager *connectionManager) members(group string) []string {
	manager.groupsMu.RLock()
	defer manager.groupsMu.RUnlock()
	return slices.Clone(manager.groups[group])
}
