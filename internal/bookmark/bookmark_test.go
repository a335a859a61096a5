package bookmark

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.bookmark")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := s.TryRead(); ok {
		t.Fatal("new bookmark should read as absent")
	}

	want := Bookmark{Offset: 1234, FileName: "/var/spool/logship/buffer-2024010112.txt"}
	if err := s.Write(want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	// a shorter write must not leave bytes of the previous one behind
	short := Bookmark{Offset: 7, FileName: "/a.txt"}
	if err := s.Write(short); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "7:::/a.txt\n" {
		t.Errorf("file content = %q", data)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	got, ok := s.TryRead()
	if !ok || got != short {
		t.Errorf("TryRead() = %+v, %v; want %+v", got, ok, short)
	}
}

func TestInterruptedWriteReadsNewBookmark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.bookmark")
	long := Bookmark{Offset: 123456789, FileName: "/var/spool/logship/buffer-2024010112.txt"}
	short := Bookmark{Offset: 7, FileName: "/a.txt"}

	// the short line has overwritten the start of the long one but the
	// truncate never happened
	content := []byte(long.String() + "\n")
	copy(content, short.String()+"\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	if got, ok := s.TryRead(); !ok || got != short {
		t.Errorf("TryRead() = %+v, %v; want %+v", got, ok, short)
	}

	// a completed Write trims the stale tail
	if err := s.Write(short); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != short.String()+"\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestCorruptContentReadsAsAbsent(t *testing.T) {
	tests := []string{
		"garbage",
		"12::/path",
		"abc:::/path",
		"-5:::/path",
		"10:::",
		"   \n",
		"",
	}
	for _, content := range tests {
		t.Run(content, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "buffer.bookmark")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			s, err := Open(path)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer s.Close()
			if b, ok := s.TryRead(); ok {
				t.Errorf("TryRead() = %+v, want absent", b)
			}
		})
	}
}

func TestParse(t *testing.T) {
	b, err := Parse("42:::/tmp/buffer-20240101.txt\r\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if b.Offset != 42 || b.FileName != "/tmp/buffer-20240101.txt" {
		t.Errorf("Parse() = %+v", b)
	}
	// file names may themselves contain the separator after the first one
	b, err = Parse("0:::/odd:::name.txt")
	if err != nil || b.FileName != "/odd:::name.txt" {
		t.Errorf("Parse() = %+v, %v", b, err)
	}
}

func TestSecondOpenIsLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.bookmark")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := Open(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Open() error = %v, want ErrLocked", err)
	}

	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	second, err := Open(path)
	if err != nil {
		t.Fatalf("Open() after Close error = %v", err)
	}
	second.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "b.bookmark"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestIsFileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer-20240101.txt")
	if err := os.WriteFile(path, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	locked, err := IsFileLocked(path)
	if err != nil || locked {
		t.Fatalf("IsFileLocked() = %v, %v; want false", locked, err)
	}

	writer, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	if err := unix.Flock(int(writer.Fd()), unix.LOCK_SH); err != nil {
		t.Fatal(err)
	}

	locked, err = IsFileLocked(path)
	if err != nil || !locked {
		t.Errorf("IsFileLocked() with shared lock held = %v, %v; want true", locked, err)
	}

	if _, err := IsFileLocked(path + ".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}
