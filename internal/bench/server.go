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

	"github.com/fastmsgq/fmq-go/internal/fmq"
)

// Server exposes a Service over a unix-domain control socket. The control
// channel only ever carries descriptors and benchmark commands; all bulk data
// moves through the shared queues it hands out.
type Server struct {
	ln  net.Listener
	svc *Service

	quit     chan struct{}
	quitOnce sync.Once
	connWG   sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer listens on the given unix socket path on behalf of svc.
func NewServer(path string, svc *Service) (*Server, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bench: listen on %s: %w", path, err)
	}
	return &Server{ln: ln, svc: svc, quit: make(chan struct{}), conns: make(map[net.Conn]struct{})}, nil
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts control connections until Close is called. Each connection
// gets its own goroutine; replies on a connection are serialized by its
// handler loop.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return fmt.Errorf("bench: accept: %w", err)
			}
		}
		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			defer func() {
				s.connMu.Lock()
				delete(s.conns, conn)
				s.connMu.Unlock()
				conn.Close()
			}()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	for {
		fh, payload, err := readFrame(conn)
		if err != nil {
			return // client went away or sent garbage; drop the connection
		}
		reply, err := s.dispatch(fh.Op, payload)
		if err != nil {
			if werr := writeFrame(conn, fh.Op, flagReply|flagError, fh.Seq, []byte(err.Error())); werr != nil {
				return
			}
			continue
		}
		if err := writeFrame(conn, fh.Op, flagReply, fh.Seq, reply); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(op OpCode, payload []byte) ([]byte, error) {
	switch op {
	case OpConfigureInbox:
		desc, err := s.svc.ConfigureClientInbox()
		if err != nil {
			return nil, err
		}
		return fmq.EncodeDescriptor(desc), nil

	case OpConfigureOutbox:
		desc, err := s.svc.ConfigureClientOutbox()
		if err != nil {
			return nil, err
		}
		return fmq.EncodeDescriptor(desc), nil

	case OpRequestWrite:
		count, err := decodeU32(payload)
		if err != nil {
			return nil, err
		}
		written, err := s.svc.RequestWrite(count)
		if err != nil {
			return nil, err
		}
		return encodeU32(written), nil

	case OpRequestRead:
		count, err := decodeU32(payload)
		if err != nil {
			return nil, err
		}
		read, err := s.svc.RequestRead(count)
		if err != nil {
			return nil, err
		}
		return encodeU32(read), nil

	case OpStartPingPong:
		numIter, err := decodeU32(payload)
		if err != nil {
			return nil, err
		}
		if err := s.svc.StartPingPong(numIter); err != nil {
			return nil, err
		}
		return nil, nil

	case OpStartWriteTest:
		numIter, err := decodeU32(payload)
		if err != nil {
			return nil, err
		}
		if err := s.svc.StartWriteTest(numIter); err != nil {
			return nil, err
		}
		return nil, nil

	case OpSendTimeData:
		stamps, err := decodeTimeData(payload)
		if err != nil {
			return nil, err
		}
		avg, err := s.svc.SendTimeData(stamps)
		if err != nil {
			return nil, err
		}
		return encodeI64(avg.Nanoseconds()), nil

	default:
		return nil, errors.New("bench: unknown op")
	}
}

// Close stops accepting, tears down active control connections, and waits
// for their handlers to drain.
func (s *Server) Close() error {
	s.quitOnce.Do(func() {
		close(s.quit)
	})
	err := s.ln.Close()
	s.connMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()
	s.connWG.Wait()
	return err
}
