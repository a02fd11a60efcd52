package main

import (
	"net"
	"path/filepath"
	"testing"

	"Mist/internal/api"
	"Mist/internal/journal"
)

// TestRunClosesOnStartFailure verifies the journal is released when the status
// API cannot bind.
func TestRunClosesOnStartFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	path := filepath.Join(t.TempDir(), "journal")

	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}

	p := &Processor{journal: j, api: api.New(ln.Addr().String(), api.Info{}, nil, nil, 0)}

	if err := p.Run(); err == nil {
		t.Fatal("expected start error")
	}

	// The store lock is held until the journal is closed.
	again, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	again.Close()
}
