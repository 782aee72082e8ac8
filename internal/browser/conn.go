package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/rs/zerolog"
)

var errClosed = errors.New("control channel closed")

// Conn is one DevTools protocol connection. Calls are correlated by id, so
// several goroutines may call concurrently; events are dropped.
type Conn struct {
	ws     *websocket.Conn
	nextID atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *cdproto.Message
	err     error

	done chan struct{}
	log  *zerolog.Logger
}

// Dial connects to a target's webSocketDebuggerUrl.
func Dial(ctx context.Context, wsURL string, logger *zerolog.Logger) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v: %w", wsURL, err, common.ErrTransport)
	}

	l := logger.With().Str("component", "ControlChannel").Logger()
	c := &Conn{
		ws:      ws,
		pending: make(map[int64]chan *cdproto.Message),
		done:    make(chan struct{}),
		log:     &l,
	}
	go c.readLoop()
	return c, nil
}

// Call sends method with params and decodes the result into result when it
// is non-nil. A protocol-level error fails only this call.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	msg := &cdproto.Message{
		ID:     c.nextID.Add(1),
		Method: cdproto.MethodType(method),
	}
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", method, err)
		}
		msg.Params = buf
	}

	ch := make(chan *cdproto.Message, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return fmt.Errorf("send %s: %v: %w", method, err, common.ErrTransport)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.done:
		return fmt.Errorf("%s: %w", method, c.closeErr())
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Conn) write(msg *cdproto.Message) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, buf)
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.setErr(fmt.Errorf("%w: %v: %w", errClosed, err, common.ErrTransport))
			return
		}

		var msg cdproto.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug().Err(err).Msg("discarding undecodable message")
			continue
		}
		if msg.ID == 0 {
			// event
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if ok {
			ch <- &msg
		}
	}
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return fmt.Errorf("%w: %w", errClosed, common.ErrTransport)
	}
	return c.err
}

// Close shuts the socket and waits for the reader to stop.
func (c *Conn) Close() error {
	c.setErr(fmt.Errorf("%w: %w", errClosed, common.ErrTransport))

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}
