package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/inconshreveable/log15"

	"go.polydawn.net/cohort/def"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 20 // networks and training sets can be large.
)

// interface assertion
var _ Broadcaster = &Hub{}

/*
	Hub is the websocket endpoint participants and observers connect to.

	Every connection becomes a Peer under a fresh session id.  Inbound
	envelopes are handed to the Handler on the connection's read
	goroutine; outbound messages go through a buffered outbox drained by
	a write goroutine, so emitting never waits on the network.  When a
	connection closes, the handler hears `UserDisconnect` for its
	session.
*/
type Hub struct {
	Handler    Handler
	Log        log15.Logger
	OutboxSize int
	Upgrader   websocket.Upgrader

	mu     sync.Mutex
	peers  map[def.WorkerID]*wsPeer
	closed bool
}

func NewHub(h Handler, log log15.Logger) *Hub {
	return &Hub{
		Handler:    h,
		Log:        log,
		OutboxSize: 256,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		peers: make(map[def.WorkerID]*wsPeer),
	}
}

// Broadcast to every connected peer.
func (hub *Hub) Emit(msg *def.Message) error {
	b, err := Encode(msg)
	if err != nil {
		return err
	}
	for _, p := range hub.snapshot() {
		if err := p.send(b); err != nil {
			hub.Log.Warn("broadcast missed a peer", "session", p.id, "event", msg.Event, "err", err)
		}
	}
	return nil
}

func (hub *Hub) snapshot() []*wsPeer {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	peers := make([]*wsPeer, 0, len(hub.peers))
	for _, p := range hub.peers {
		peers = append(peers, p)
	}
	return peers
}

func (hub *Hub) Peers() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.peers)
}

func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.Log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	p := &wsPeer{
		id:   def.WorkerID(uuid.NewString()),
		conn: conn,
		out:  make(chan []byte, hub.OutboxSize),
		done: make(chan struct{}),
	}
	p.log = hub.Log.New("session", p.id)

	hub.mu.Lock()
	if hub.closed {
		hub.mu.Unlock()
		conn.Close()
		return
	}
	hub.peers[p.id] = p
	hub.mu.Unlock()
	p.log.Info("peer connected", "remote", r.RemoteAddr)

	go p.writeLoop()
	hub.readLoop(p)
}

func (hub *Hub) readLoop(p *wsPeer) {
	defer func() {
		hub.mu.Lock()
		delete(hub.peers, p.id)
		hub.mu.Unlock()
		p.close()
		p.log.Info("peer disconnected")
		hub.Handler.UserDisconnect(p.id)
	}()
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Warn("read failed", "err", err)
			}
			return
		}
		var msg def.Message
		if err := Decode(data, &msg); err != nil {
			p.log.Warn("undecodable message", "err", err)
			p.Emit(def.ErrorMessage(err))
			continue
		}
		if err := Dispatch(hub.Handler, p, &msg); err != nil {
			p.log.Warn("event refused", "event", msg.Event, "err", err)
			p.Emit(def.ErrorMessage(err))
		}
	}
}

// Drop every connection.  Peers see a normal close.
func (hub *Hub) Close() {
	hub.mu.Lock()
	hub.closed = true
	peers := make([]*wsPeer, 0, len(hub.peers))
	for _, p := range hub.peers {
		peers = append(peers, p)
	}
	hub.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

// interface assertion
var _ Peer = &wsPeer{}

type wsPeer struct {
	id   def.WorkerID
	conn *websocket.Conn
	log  log15.Logger
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (p *wsPeer) ID() def.WorkerID { return p.id }

func (p *wsPeer) Emit(msg *def.Message) error {
	b, err := Encode(msg)
	if err != nil {
		return err
	}
	return p.send(b)
}

func (p *wsPeer) send(b []byte) error {
	select {
	case <-p.done:
		return PeerGoneError.New("session %s is closed", p.id)
	default:
	}
	select {
	case p.out <- b:
		return nil
	case <-p.done:
		return PeerGoneError.New("session %s is closed", p.id)
	default:
		return OutboxFullError.New("session %s has %d messages waiting", p.id, len(p.out))
	}
}

func (p *wsPeer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case b := <-p.out:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				p.log.Warn("write failed", "err", err)
				p.conn.Close()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.conn.Close()
				return
			}
		case <-p.done:
			p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			p.conn.Close()
			return
		}
	}
}

func (p *wsPeer) close() {
	p.once.Do(func() { close(p.done) })
}
