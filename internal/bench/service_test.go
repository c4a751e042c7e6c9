//go:build linux && (amd64 || arm64)

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
	"path/filepath"
	"testing"
	"time"
)

func startTestServer(t *testing.T) (*Client, *Service) {
	t.Helper()
	svc := NewService(WithQueueElems(1024))
	sock := filepath.Join(t.TempDir(), "bench.sock")
	srv, err := NewServer(sock, svc)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		srv.Close()
		svc.Close()
		if err := <-serveErr; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})
	return client, svc
}

func configureBothQueues(t *testing.T, client *Client) {
	t.Helper()
	if err := client.ConfigureInbox(); err != nil {
		t.Fatalf("ConfigureInbox failed: %v", err)
	}
	if err := client.ConfigureOutbox(); err != nil {
		t.Fatalf("ConfigureOutbox failed: %v", err)
	}
}

func TestRequestWriteAndRead(t *testing.T) {
	client, _ := startTestServer(t)
	configureBothQueues(t, client)

	// Service writes into the client's inbox; client reads it directly from
	// shared memory.
	written, err := client.RequestWrite(128)
	if err != nil {
		t.Fatalf("RequestWrite failed: %v", err)
	}
	if written != 128 {
		t.Fatalf("RequestWrite wrote %d bytes, want 128", written)
	}
	buf := make([]byte, 128)
	if err := client.Inbox().Read(buf, 128); err != nil {
		t.Fatalf("inbox Read failed: %v", err)
	}
	for i, b := range buf {
		if b != byte(i) {
			t.Fatalf("byte %d: got %d, want %d", i, b, byte(i))
		}
	}

	// Client writes into its outbox; service reads it on request.
	if err := client.Outbox().Write(buf, 128); err != nil {
		t.Fatalf("outbox Write failed: %v", err)
	}
	read, err := client.RequestRead(128)
	if err != nil {
		t.Fatalf("RequestRead failed: %v", err)
	}
	if read != 128 {
		t.Fatalf("RequestRead read %d bytes, want 128", read)
	}

	// With the outbox drained, a further service read reports zero.
	read, err = client.RequestRead(1)
	if err != nil {
		t.Fatalf("RequestRead on empty failed: %v", err)
	}
	if read != 0 {
		t.Fatalf("RequestRead on empty queue = %d, want 0", read)
	}
}

func TestOpsBeforeConfigurationFail(t *testing.T) {
	client, _ := startTestServer(t)
	if _, err := client.RequestWrite(8); err == nil {
		t.Fatal("RequestWrite succeeded with no queues configured")
	}
	if err := client.StartPingPong(1); err == nil {
		t.Fatal("StartPingPong succeeded with no queues configured")
	}
}

func TestPingPongRoundTrips(t *testing.T) {
	const numIter = 1000
	client, _ := startTestServer(t)
	configureBothQueues(t, client)

	if err := client.StartPingPong(numIter); err != nil {
		t.Fatalf("StartPingPong failed: %v", err)
	}

	out := make([]byte, PacketSize)
	in := make([]byte, PacketSize)
	for i := 0; i < numIter; i++ {
		for j := range out {
			out[j] = byte(i + j)
		}
		if err := client.Outbox().WriteBlocking(out, PacketSize, 10*time.Second); err != nil {
			t.Fatalf("iteration %d: write failed: %v", i, err)
		}
		if err := client.Inbox().ReadBlocking(in, PacketSize, 10*time.Second); err != nil {
			t.Fatalf("iteration %d: read failed: %v", i, err)
		}
		for j := range in {
			if in[j] != out[j] {
				t.Fatalf("iteration %d byte %d: echo mismatch", i, j)
			}
		}
	}
}

func TestReconfigureRefusedWhileJobPending(t *testing.T) {
	client, _ := startTestServer(t)
	configureBothQueues(t, client)

	// The echo job blocks reading the empty inbox; destroying a queue under
	// it would unmap memory it is still using, so reconfiguration must be
	// refused until the job drains.
	if err := client.StartPingPong(1); err != nil {
		t.Fatalf("StartPingPong failed: %v", err)
	}
	if err := client.ConfigureInbox(); err == nil {
		t.Fatal("ConfigureInbox succeeded with a benchmark job pending")
	}
	if err := client.ConfigureOutbox(); err == nil {
		t.Fatal("ConfigureOutbox succeeded with a benchmark job pending")
	}

	// Complete the round trip so the job finishes.
	pkt := make([]byte, PacketSize)
	if err := client.Outbox().WriteBlocking(pkt, PacketSize, 10*time.Second); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := client.Inbox().ReadBlocking(pkt, PacketSize, 10*time.Second); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	// The worker marks the job done shortly after the echo lands.
	deadline := time.Now().Add(10 * time.Second)
	for {
		err := client.ConfigureInbox()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reconfiguration still refused after job drained: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriteTestDelayMeasurement(t *testing.T) {
	const numIter = 500
	client, _ := startTestServer(t)
	configureBothQueues(t, client)

	if err := client.StartWriteTest(numIter); err != nil {
		t.Fatalf("StartWriteTest failed: %v", err)
	}

	stamps := make([]int64, numIter)
	pkt := make([]byte, PacketSize)
	for i := 0; i < numIter; i++ {
		if err := client.Inbox().ReadBlocking(pkt, PacketSize, 10*time.Second); err != nil {
			t.Fatalf("packet %d: read failed: %v", i, err)
		}
		stamps[i] = time.Now().UnixNano()
	}

	avg, err := client.SendTimeData(stamps)
	if err != nil {
		t.Fatalf("SendTimeData failed: %v", err)
	}
	// Both clocks are the same process here, so the mean delay is
	// non-negative and small.
	if avg < 0 {
		t.Fatalf("mean delay %v is negative", avg)
	}
	if avg > 10*time.Second {
		t.Fatalf("mean delay %v is implausible", avg)
	}
}

func TestSendTimeDataValidation(t *testing.T) {
	client, _ := startTestServer(t)
	configureBothQueues(t, client)

	if _, err := client.SendTimeData([]int64{1, 2, 3}); err == nil {
		t.Fatal("SendTimeData succeeded before any write test")
	}

	if err := client.StartWriteTest(4); err != nil {
		t.Fatalf("StartWriteTest failed: %v", err)
	}
	pkt := make([]byte, PacketSize)
	for i := 0; i < 4; i++ {
		if err := client.Inbox().ReadBlocking(pkt, PacketSize, 10*time.Second); err != nil {
			t.Fatalf("packet %d: read failed: %v", i, err)
		}
	}
	if _, err := client.SendTimeData([]int64{1}); err == nil {
		t.Fatal("SendTimeData accepted a mismatched stamp count")
	}
}
