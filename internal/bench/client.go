/*
 *
 * Copyright 2025 fmq-go authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package bench

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fastmsgq/fmq-go/internal/fmq"
)

// Client drives a benchmark Service over its control socket. Calls are
// synchronous request/reply; descriptors received from the service are
// attached locally so the benchmark loops can touch shared memory directly.
type Client struct {
	conn net.Conn

	mu  sync.Mutex // one in-flight call at a time
	seq uint32

	inbox  *fmq.Queue // service -> client
	outbox *fmq.Queue // client -> service
}

// Dial connects to a benchmark server's control socket.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bench: dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// call performs one synchronous request/reply exchange.
func (c *Client) call(op OpCode, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	seq := c.seq
	if err := writeFrame(c.conn, op, 0, seq, payload); err != nil {
		return nil, err
	}
	fh, reply, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	if fh.Op != op || fh.Seq != seq || fh.Flags&flagReply == 0 {
		return nil, fmt.Errorf("bench: mismatched reply: op=%d seq=%d flags=%#x", fh.Op, fh.Seq, fh.Flags)
	}
	if fh.Flags&flagError != 0 {
		return nil, errors.New(string(reply))
	}
	return reply, nil
}

// configure asks the service for a queue descriptor and attaches it.
func (c *Client) configure(op OpCode) (*fmq.Queue, error) {
	reply, err := c.call(op, nil)
	if err != nil {
		return nil, err
	}
	desc, err := fmq.DecodeDescriptor(reply)
	if err != nil {
		return nil, err
	}
	return fmq.Attach(desc)
}

// ConfigureInbox sets up the queue this client reads from.
func (c *Client) ConfigureInbox() error {
	q, err := c.configure(OpConfigureInbox)
	if err != nil {
		return err
	}
	if c.inbox != nil {
		c.inbox.Close()
	}
	c.inbox = q
	return nil
}

// ConfigureOutbox sets up the queue this client writes into.
func (c *Client) ConfigureOutbox() error {
	q, err := c.configure(OpConfigureOutbox)
	if err != nil {
		return err
	}
	if c.outbox != nil {
		c.outbox.Close()
	}
	c.outbox = q
	return nil
}

// Inbox returns the attached service-to-client queue, or nil before
// ConfigureInbox.
func (c *Client) Inbox() *fmq.Queue { return c.inbox }

// Outbox returns the attached client-to-service queue, or nil before
// ConfigureOutbox.
func (c *Client) Outbox() *fmq.Queue { return c.outbox }

// RequestWrite asks the service to write count bytes into the client's inbox.
// The result is how many bytes the service wrote (0 means its queue was full).
func (c *Client) RequestWrite(count uint32) (uint32, error) {
	reply, err := c.call(OpRequestWrite, encodeU32(count))
	if err != nil {
		return 0, err
	}
	return decodeU32(reply)
}

// RequestRead asks the service to read count bytes from the client's outbox.
func (c *Client) RequestRead(count uint32) (uint32, error) {
	reply, err := c.call(OpRequestRead, encodeU32(count))
	if err != nil {
		return 0, err
	}
	return decodeU32(reply)
}

// StartPingPong starts the service's echo worker for numIter packets.
func (c *Client) StartPingPong(numIter uint32) error {
	_, err := c.call(OpStartPingPong, encodeU32(numIter))
	return err
}

// StartWriteTest starts the service's timed writer for numIter packets.
func (c *Client) StartWriteTest(numIter uint32) error {
	_, err := c.call(OpStartWriteTest, encodeU32(numIter))
	return err
}

// SendTimeData delivers per-packet receive stamps and returns the mean
// service-to-client write-to-read delay computed by the service.
func (c *Client) SendTimeData(stamps []int64) (time.Duration, error) {
	reply, err := c.call(OpSendTimeData, encodeTimeData(stamps))
	if err != nil {
		return 0, err
	}
	ns, err := decodeI64(reply)
	if err != nil {
		return 0, err
	}
	return time.Duration(ns), nil
}

// Close releases the attached queues and the control connection. The service
// side owns the shared memory; this side only drops its mappings.
func (c *Client) Close() error {
	var firstErr error
	if c.inbox != nil {
		if err := c.inbox.Close(); err != nil {
			firstErr = err
		}
		c.inbox = nil
	}
	if c.outbox != nil {
		if err := c.outbox.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.outbox = nil
	}
	if err := c.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
