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

// fmq-bench-server hosts the message-queue benchmark service: it creates the
// shared queues on request and hands their descriptors to a client process
// over a unix control socket.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastmsgq/fmq-go/internal/bench"
)

func main() {
	socket := flag.String("socket", "/tmp/fmq-bench.sock", "control socket path")
	elems := flag.Uint64("elems", bench.DefaultQueueElems, "queue capacity in single-byte elements")
	flag.Parse()

	// A stale socket from a previous run would make Listen fail.
	os.Remove(*socket)

	svc := bench.NewService(bench.WithQueueElems(*elems))
	defer svc.Close()

	srv, err := bench.NewServer(*socket, svc)
	if err != nil {
		log.Fatalf("failed to start benchmark server: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		srv.Close()
		os.Remove(*socket)
	}()

	fmt.Printf("benchmark service listening on %s (queues: %d elements)\n", *socket, *elems)
	if err := srv.Serve(); err != nil {
		log.Fatalf("serve failed: %v", err)
	}
}
