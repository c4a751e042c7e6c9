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
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("descriptor bytes go here")
	if err := writeFrame(&buf, OpConfigureInbox, flagReply, 42, payload); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	fh, got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if fh.Op != OpConfigureInbox || fh.Seq != 42 || fh.Flags != flagReply {
		t.Fatalf("header mismatch: %+v", fh)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %q", got)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, OpStartPingPong, 0, 7, nil); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}
	fh, payload, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if fh.Length != 0 || payload != nil {
		t.Fatalf("expected empty payload, got length=%d payload=%v", fh.Length, payload)
	}
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	hdr := []byte{0xFF, 0xFF, 0xFF, 0xFF, byte(OpRequestRead), 0, 0, 0, 1, 0, 0, 0}
	buf.Write(hdr)
	if _, _, err := readFrame(&buf); err == nil {
		t.Fatal("readFrame accepted an oversized payload length")
	}
}

func TestTimeDataRoundTrip(t *testing.T) {
	stamps := []int64{0, 1, -5, 1700000000000000000, 42}
	got, err := decodeTimeData(encodeTimeData(stamps))
	if err != nil {
		t.Fatalf("decodeTimeData failed: %v", err)
	}
	if len(got) != len(stamps) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(stamps))
	}
	for i := range stamps {
		if got[i] != stamps[i] {
			t.Fatalf("stamp %d: got %d, want %d", i, got[i], stamps[i])
		}
	}
}

func TestTimeDataRejectsShortPayload(t *testing.T) {
	enc := encodeTimeData([]int64{1, 2, 3})
	if _, err := decodeTimeData(enc[:len(enc)-1]); err == nil {
		t.Fatal("decodeTimeData accepted a truncated payload")
	}
	if _, err := decodeTimeData(nil); err == nil {
		t.Fatal("decodeTimeData accepted nil")
	}
}
