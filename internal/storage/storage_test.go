package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

// newTestStorage opens a store in a temporary directory.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "db"), Options{})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get = %q, %v", got, err)
	}

	missing, err := s.Get([]byte("none"))
	if err != nil || missing != nil {
		t.Fatalf("Get(missing) = %q, %v", missing, err)
	}
}

func TestApplyMixedOps(t *testing.T) {
	s := newTestStorage(t)

	s.Set([]byte("a"), []byte("1"))

	if err := s.Apply(Put([]byte("b"), []byte("2")), Del([]byte("a"))); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got, _ := s.Get([]byte("a")); got != nil {
		t.Fatalf("a = %q, want deleted", got)
	}

	if got, _ := s.Get([]byte("b")); !bytes.Equal(got, []byte("2")) {
		t.Fatalf("b = %q", got)
	}
}

func TestIteratePrefixOrder(t *testing.T) {
	s := newTestStorage(t)

	s.Apply(
		Put([]byte("q:\x00\x02"), []byte("second")),
		Put([]byte("q:\x00\x01"), []byte("first")),
		Put([]byte("r:\x00\x00"), []byte("other")),
	)

	var seen []string

	err := s.IteratePrefix([]byte("q:"), func(_, value []byte) error {
		seen = append(seen, string(value))
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestIterateStopsOnError(t *testing.T) {
	s := newTestStorage(t)

	s.Apply(Put([]byte("p1"), []byte("x")), Put([]byte("p2"), []byte("y")))

	stop := errors.New("stop")
	calls := 0

	err := s.IteratePrefix([]byte("p"), func(_, _ []byte) error {
		calls++
		return stop
	})

	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	cases := []struct {
		in, want []byte
	}{
		{[]byte("a"), []byte("b")},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xff, 0xff}, nil},
	}

	for _, c := range cases {
		if got := prefixUpperBound(c.in); !bytes.Equal(got, c.want) {
			t.Errorf("prefixUpperBound(%x) = %x, want %x", c.in, got, c.want)
		}
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	s, err := New(path, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Set([]byte("k"), []byte("v"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Set([]byte("k"), []byte("w")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after close = %v, want ErrClosed", err)
	}

	s, err = New(path, Options{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if got, _ := s.Get([]byte("k")); !bytes.Equal(got, []byte("v")) {
		t.Fatalf("after reopen = %q", got)
	}
}
