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

// fmq-bench-client connects to a running fmq-bench-server, attaches the
// shared queues it hands out, and measures round-trip latency and
// service-to-client write-to-read delay through shared memory.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fastmsgq/fmq-go/internal/bench"
)

const opTimeout = 30 * time.Second

func main() {
	socket := flag.String("socket", "/tmp/fmq-bench.sock", "control socket path")
	iters := flag.Uint("iters", 10000, "iterations per benchmark")
	flag.Parse()
	numIter := uint32(*iters)

	client, err := bench.Dial(*socket)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.ConfigureInbox(); err != nil {
		log.Fatalf("failed to configure inbox: %v", err)
	}
	if err := client.ConfigureOutbox(); err != nil {
		log.Fatalf("failed to configure outbox: %v", err)
	}

	if err := runPingPong(client, numIter); err != nil {
		log.Fatalf("ping-pong benchmark failed: %v", err)
	}
	if err := runThroughput(client, numIter); err != nil {
		log.Fatalf("throughput benchmark failed: %v", err)
	}
	if err := runWriteToRead(client, numIter); err != nil {
		log.Fatalf("write-to-read benchmark failed: %v", err)
	}
}

// runPingPong measures sequential round-trip latency: write one packet, wait
// for the echo, repeat.
func runPingPong(client *bench.Client, numIter uint32) error {
	if err := client.StartPingPong(numIter); err != nil {
		return err
	}
	pkt := make([]byte, bench.PacketSize)

	start := time.Now()
	for i := uint32(0); i < numIter; i++ {
		if err := client.Outbox().WriteBlocking(pkt, bench.PacketSize, opTimeout); err != nil {
			return fmt.Errorf("iteration %d: write: %w", i, err)
		}
		if err := client.Inbox().ReadBlocking(pkt, bench.PacketSize, opTimeout); err != nil {
			return fmt.Errorf("iteration %d: read: %w", i, err)
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("ping-pong: %d round trips in %v (%v per round trip)\n",
		numIter, elapsed, elapsed/time.Duration(numIter))
	return nil
}

// runThroughput pushes the same echo workload with the writer and reader
// pumping concurrently, so the queues stay busy instead of ping-ponging one
// packet at a time.
func runThroughput(client *bench.Client, numIter uint32) error {
	if err := client.StartPingPong(numIter); err != nil {
		return err
	}

	start := time.Now()
	var g errgroup.Group
	g.Go(func() error {
		pkt := make([]byte, bench.PacketSize)
		for i := uint32(0); i < numIter; i++ {
			if err := client.Outbox().WriteBlocking(pkt, bench.PacketSize, opTimeout); err != nil {
				return fmt.Errorf("writer iteration %d: %w", i, err)
			}
		}
		return nil
	})
	g.Go(func() error {
		pkt := make([]byte, bench.PacketSize)
		for i := uint32(0); i < numIter; i++ {
			if err := client.Inbox().ReadBlocking(pkt, bench.PacketSize, opTimeout); err != nil {
				return fmt.Errorf("reader iteration %d: %w", i, err)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	bytes := int64(numIter) * bench.PacketSize
	fmt.Printf("throughput: %d packets (%d bytes) echoed in %v (%.1f MB/s each way)\n",
		numIter, bytes, elapsed, float64(bytes)/elapsed.Seconds()/1e6)
	return nil
}

// runWriteToRead measures the one-way delay from the service stamping a
// packet before writing it to this process observing it after a read.
func runWriteToRead(client *bench.Client, numIter uint32) error {
	if err := client.StartWriteTest(numIter); err != nil {
		return err
	}
	stamps := make([]int64, numIter)
	pkt := make([]byte, bench.PacketSize)
	for i := uint32(0); i < numIter; i++ {
		if err := client.Inbox().ReadBlocking(pkt, bench.PacketSize, opTimeout); err != nil {
			return fmt.Errorf("packet %d: read: %w", i, err)
		}
		stamps[i] = time.Now().UnixNano()
	}
	avg, err := client.SendTimeData(stamps)
	if err != nil {
		return err
	}
	fmt.Printf("write-to-read: average service-to-client delay %v over %d packets\n", avg, numIter)
	return nil
}
