package transport

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"go.polydawn.net/cohort/def"
)

// interface assertion
var _ Emitter = &Conn{}

/*
	Conn is the participant's end of the websocket: it speaks the same
	envelope as the hub.  Emit may be called from any goroutine; Receive
	from one at a time.
*/
type Conn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, PeerGoneError.Wrap(err)
	}
	ws.SetReadLimit(maxMessageSize)
	return &Conn{ws: ws}, nil
}

func (c *Conn) Emit(msg *def.Message) error {
	b, err := Encode(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return PeerGoneError.Wrap(err)
	}
	return nil
}

// Block for the next message.  Errors once the connection is gone.
func (c *Conn) Receive() (*def.Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, PeerGoneError.Wrap(err)
	}
	var msg def.Message
	if err := Decode(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Conn) Close() error {
	c.wmu.Lock()
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.ws.Close()
}
