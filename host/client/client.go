// Package client drives a Hitagi bootloader from the host side.
//
// A Client owns one reader goroutine that reassembles reply frames from the
// link and hands them to the synchronous request methods. Only one request
// is in flight at a time.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"hitagi/protocol"
)

// Defaults
const (
	DefaultTimeout    = 5 * time.Second
	DefaultPacketSize = 64
	DefaultBlockSize  = protocol.MaxBinSize
	DefaultReadChunk  = 0x400
)

// ErrClosed is returned by requests after Close.
var ErrClosed = errors.New("client: closed")

// reply is a reassembled frame copied out of the reader's buffers.
type reply struct {
	tag     string
	data    []byte
	trailer []byte
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds the wait for each reply.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPacketSize sets the chunk size requests are sent in.
func WithPacketSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.packetSize = n
		}
	}
}

// WithBlockSize sets the BIN payload size used by Write. It is rounded down
// to an even value within the protocol limits.
func WithBlockSize(n int) Option {
	return func(c *Client) {
		n &^= 1
		if n < protocol.MinBinSize {
			n = protocol.MinBinSize
		}
		if n > protocol.MaxBinSize {
			n = protocol.MaxBinSize
		}
		c.blockSize = n
	}
}

// WithProgress registers a callback for Write and Read progress in bytes.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// Client is a connection to one device. It is not safe for concurrent use.
type Client struct {
	link       protocol.Link
	enc        *protocol.Encoder
	timeout    time.Duration
	packetSize int
	blockSize  int
	progress   func(done, total int)

	replies chan reply
	errc    chan error
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup

	// mode mirrors the device erase mode counter; a fresh session is 0.
	mode uint16
}

// New starts the reader on link.
func New(link protocol.Link, opts ...Option) *Client {
	c := &Client{
		link:       link,
		timeout:    DefaultTimeout,
		packetSize: DefaultPacketSize,
		blockSize:  DefaultBlockSize,
		replies:    make(chan reply, 4),
		errc:       make(chan error, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.enc = protocol.NewEncoder(link, c.packetSize)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.readLoop(ctx)
	return c
}

// Close stops the reader. The link itself is left open.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	r := protocol.NewReassembler(c.link, protocol.HostBinaryFields)
	for {
		f, err := r.Next(ctx)
		if err != nil {
			var fe *protocol.FramingError
			if errors.As(err, &fe) {
				glog.Warningf("client: dropped reply: %v", fe)
				continue
			}
			if ctx.Err() == nil {
				c.errc <- errors.Wrap(err, "client: link")
			}
			return
		}
		rep := reply{tag: f.Command}
		if f.Data != nil {
			rep.data = append([]byte{}, f.Data...)
		}
		if f.Trailer != nil {
			rep.trailer = append([]byte{}, f.Trailer...)
		}
		if glog.V(3) {
			glog.Infof("client: <- %s %q", rep.tag, rep.data)
		}
		select {
		case c.replies <- rep:
		case <-ctx.Done():
			return
		}
	}
}

// send transmits a prebuilt frame. Replies that arrived after an earlier
// request timed out are dropped first so they cannot answer this one.
func (c *Client) send(frame []byte) {
	c.drain()
	c.enc.Transmit(frame)
}

func (c *Client) drain() {
	for {
		select {
		case rep := <-c.replies:
			glog.Warningf("client: dropped late reply %s %q", rep.tag, rep.data)
		default:
			return
		}
	}
}

// wait returns the next reply. ERR replies become *DeviceError.
func (c *Client) wait(ctx context.Context, command string) (reply, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case rep := <-c.replies:
		if rep.tag == protocol.TagErr {
			code := byte(0)
			if len(rep.data) > 0 {
				code = rep.data[0]
			}
			return rep, &DeviceError{Command: command, Code: code}
		}
		return rep, nil
	case err := <-c.errc:
		// Keep the error for later requests.
		c.errc <- err
		return reply{}, err
	case <-c.done:
		return reply{}, ErrClosed
	case <-timer.C:
		return reply{}, errors.Errorf("client: %s: no reply within %s", command, c.timeout)
	case <-ctx.Done():
		return reply{}, errors.Wrap(ctx.Err(), "client: "+command)
	}
}

// call sends a text command and waits for a reply tagged tag.
func (c *Client) call(ctx context.Context, command string, data []byte, tag string) (reply, error) {
	if glog.V(3) {
		glog.Infof("client: -> %s %q", command, data)
	}
	c.send(TextFrame(command, data))
	rep, err := c.wait(ctx, command)
	if err != nil {
		return rep, err
	}
	if rep.tag != tag {
		return rep, &ReplyError{Command: command, Tag: rep.tag, Data: rep.data}
	}
	return rep, nil
}

// ack sends a command answered with "ACK command[,data]" and returns data.
func (c *Client) ack(ctx context.Context, command string, data []byte) (string, error) {
	rep, err := c.call(ctx, command, data, protocol.TagAck)
	if err != nil {
		return "", err
	}
	return ackData(command, rep)
}

func ackData(command string, rep reply) (string, error) {
	s := string(rep.data)
	switch {
	case s == command:
		return "", nil
	case len(s) > len(command) && s[:len(command)] == command && s[len(command)] == ',':
		return s[len(command)+1:], nil
	}
	return "", &ReplyError{Command: command, Tag: rep.tag, Data: rep.data}
}

// TextFrame builds "STX command [RS data] ETX".
func TextFrame(command string, data []byte) []byte {
	f := make([]byte, 0, len(command)+len(data)+3)
	f = append(f, protocol.STX)
	f = append(f, command...)
	if data != nil {
		f = append(f, protocol.RS)
		f = append(f, data...)
	}
	return append(f, protocol.ETX)
}

// BinFrame builds a BIN frame with its length prefix, checksum and ETX.
func BinFrame(payload []byte) []byte {
	f := make([]byte, 0, len(payload)+8)
	f = append(f, protocol.STX)
	f = append(f, protocol.TagBin...)
	f = append(f, protocol.RS, byte(len(payload)>>8), byte(len(payload)))
	f = append(f, payload...)
	return append(f, protocol.Checksum(payload), protocol.ETX)
}
