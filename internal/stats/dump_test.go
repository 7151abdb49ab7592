package stats

import (
	"strings"
	"testing"
	"time"
)

const sampleDump = "privkey\tpubkey-server\t51820\toff\n" +
	"pk-alice\tpsk-alice\t203.0.113.5:41920\t10.0.0.2/32\t1735689600\t1048576\t2097152\toff\n" +
	"pk-bob\t(none)\t(none)\t10.0.0.3/32\t0\t0\t0\t25\n"

func TestParseDump(t *testing.T) {
	got, err := ParseDump(strings.NewReader(sampleDump))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("parsed %d peers, want 2", len(got))
	}

	alice := got[0]
	if alice.PublicKey != "pk-alice" {
		t.Fatalf("public key %q", alice.PublicKey)
	}
	if alice.Endpoint != "203.0.113.5:41920" {
		t.Fatalf("endpoint %q", alice.Endpoint)
	}
	if alice.ReceiveBytes != 1048576 || alice.TransmitBytes != 2097152 {
		t.Fatalf("counters rx=%d tx=%d", alice.ReceiveBytes, alice.TransmitBytes)
	}
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !alice.LastHandshake.Equal(want) {
		t.Fatalf("handshake %v, want %v", alice.LastHandshake, want)
	}

	bob := got[1]
	if !bob.LastHandshake.IsZero() {
		t.Fatal("bob never shook hands, got non-zero time")
	}
	if bob.Endpoint != "" {
		t.Fatalf("bob endpoint %q", bob.Endpoint)
	}
}

func TestParseDumpWithoutHeader(t *testing.T) {
	// снапшот может прийти и без строки интерфейса
	got, err := ParseDump(strings.NewReader(
		"pk-x\t(none)\t(none)\t10.0.0.9/32\t0\t5\t6\toff\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ReceiveBytes != 5 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseDumpMalformed(t *testing.T) {
	for _, bad := range []string{
		"pk-x\tonly\tfive\tshort\tfields\n",
		"pk-x\t(none)\t(none)\t10.0.0.9/32\tNaN\t0\t0\toff\n",
		"pk-x\t(none)\t(none)\t10.0.0.9/32\t0\tNaN\t0\toff\n",
	} {
		if _, err := ParseDump(strings.NewReader(bad)); err == nil {
			t.Fatalf("ParseDump(%q) succeeded, want error", bad)
		}
	}
}

func TestParseDumpEmpty(t *testing.T) {
	got, err := ParseDump(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d peers from empty feed", len(got))
	}
}

func TestOnline(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if Online(nil, now) {
		t.Fatal("peer without handshake reported online")
	}
	fresh := now.Add(-time.Minute)
	if !Online(&fresh, now) {
		t.Fatal("fresh handshake reported offline")
	}
	edge := now.Add(-OnlineWindow)
	if Online(&edge, now) {
		t.Fatal("handshake right on the window edge reported online")
	}
	stale := now.Add(-10 * time.Minute)
	if Online(&stale, now) {
		t.Fatal("stale handshake reported online")
	}
}

func TestHumanBytes(t *testing.T) {
	for _, tc := range []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{5 * 1 << 20, "5.00 MiB"},
		{6690519654, "6.23 GiB"},
	} {
		if got := HumanBytes(tc.n); got != tc.want {
			t.Fatalf("HumanBytes(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
