package modules

import (
	"testing"
)

// TestChunkID verifies the canonical chunk id form and its parsers.
func TestChunkID(t *testing.T) {
	id := NewChunkID("report.pdf", 7)
	if id != "report.pdf.chunk.7" {
		t.Fatal("unexpected chunk id:", id)
	}
	index, err := id.Index()
	if err != nil {
		t.Fatal(err)
	}
	if index != 7 {
		t.Error("unexpected index:", index)
	}
	filename, err := id.Filename()
	if err != nil {
		t.Fatal(err)
	}
	if filename != "report.pdf" {
		t.Error("unexpected filename:", filename)
	}

	// Filenames containing the infix parse from the last occurrence.
	id = NewChunkID("weird.chunk.3.bin", 0)
	filename, err = id.Filename()
	if err != nil {
		t.Fatal(err)
	}
	if filename != "weird.chunk.3.bin" {
		t.Error("unexpected filename:", filename)
	}

	// Malformed ids are rejected.
	for _, bad := range []ChunkID{"", "nochunk", "file.chunk.", "file.chunk.x", "file.chunk.-1"} {
		if _, err := bad.Index(); err == nil {
			t.Error("expected malformed id to be rejected:", bad)
		}
	}
}

// TestNetAddressHost verifies host extraction from announced base URLs.
func TestNetAddressHost(t *testing.T) {
	tests := []struct {
		addr NetAddress
		host string
	}{
		{"http://10.0.1.1:9010", "10.0.1.1"},
		{"http://10.0.1.1:9010/", "10.0.1.1"},
		{"10.0.1.1:9010", "10.0.1.1"},
		{"10.0.1.1", "10.0.1.1"},
		{"http://localhost:5000", "localhost"},
		{"", ""},
	}
	for _, test := range tests {
		if host := test.addr.Host(); host != test.host {
			t.Errorf("Host(%v) = %v, expected %v", test.addr, host, test.host)
		}
	}
	if !NetAddress("http://127.0.0.1:5000").IsLoopback() {
		t.Error("127.0.0.1 should be loopback")
	}
	if NetAddress("http://10.0.1.1:5000").IsLoopback() {
		t.Error("10.0.1.1 should not be loopback")
	}
}
