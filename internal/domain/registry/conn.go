package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webitel/im-messaging-service/internal/domain/model"
)

// Socket is the transport half a Conn writes to. *websocket.Conn satisfies it.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live WebSocket session. All writes to the underlying socket go
// through a single pump goroutine, so frames never interleave no matter how
// many goroutines call Send concurrently.
type Conn struct {
	id       uuid.UUID
	identity model.Identity
	sock     Socket

	// mailbox decouples producers from the socket. A slow reader on the
	// other end fills it up and costs that session frames, not the hub.
	mailbox chan []byte

	done      chan struct{}
	closeOnce sync.Once
	writeWait time.Duration
	dropped   atomic.Uint64
}

func newConn(identity model.Identity, sock Socket, mailboxSize int, writeWait time.Duration) *Conn {
	return &Conn{
		id:        uuid.New(),
		identity:  identity,
		sock:      sock,
		mailbox:   make(chan []byte, mailboxSize),
		done:      make(chan struct{}),
		writeWait: writeWait,
	}
}

func (c *Conn) ID() uuid.UUID            { return c.id }
func (c *Conn) UserID() uuid.UUID        { return c.identity.UserID }
func (c *Conn) Username() string         { return c.identity.Username }
func (c *Conn) Identity() model.Identity { return c.identity }

// Dropped reports how many frames this session has shed under backpressure.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

// Send enqueues a frame for the pump. It waits up to timeout for mailbox
// space and returns false once the session is closed, full for the whole
// window, or the timeout is zero and the mailbox is full right now.
func (c *Conn) Send(frame []byte, timeout time.Duration) bool {
	// A closed session must never report acceptance, even while its mailbox
	// still has space the pump will never drain.
	select {
	case <-c.done:
		return false
	default:
	}

	if timeout <= 0 {
		select {
		case <-c.done:
			return false
		case c.mailbox <- frame:
			return true
		default:
			c.dropped.Add(1)
			return false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-c.done:
		return false
	case c.mailbox <- frame:
		return true
	case <-t.C:
		c.dropped.Add(1)
		return false
	}
}

// Close tears the session down exactly once. Closing the socket makes the
// read loop on the other side fail, which is what drives Detach.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

func (c *Conn) pump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.mailbox:
			c.sock.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		}
	}
}
