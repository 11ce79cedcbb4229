package photo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestSaver(t *testing.T) *Saver {
	t.Helper()
	s, err := NewSaver(filepath.Join(t.TempDir(), "photos"), nil)
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	return s
}

func TestAllowed(t *testing.T) {
	s := newTestSaver(t)

	tests := []struct {
		filename string
		want     bool
	}{
		{"face.png", true},
		{"face.JPG", true},
		{"face.jpeg", true},
		{"anim.gif", true},
		{"modern.WebP", true},
		{"doc.pdf", false},
		{"noext", false},
		{"archive.png.exe", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := s.Allowed(tt.filename); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestSave(t *testing.T) {
	s := newTestSaver(t)
	now := time.Unix(1767225600, 0)

	name, err := s.Save("S1", "Portrait.JPG", strings.NewReader("jpegdata"), now)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "S1_1767225600.jpg" {
		t.Errorf("unexpected name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(), name))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "jpegdata" {
		t.Errorf("unexpected content %q", data)
	}

	if err := s.Remove(name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), name)); !os.IsNotExist(err) {
		t.Errorf("expected file to be removed, stat err = %v", err)
	}
	if err := s.Remove(name); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
}

func TestSaveSameSecondKeepsBothFiles(t *testing.T) {
	s := newTestSaver(t)
	now := time.Unix(1767225600, 0)

	first, err := s.Save("S1", "midterm.png", strings.NewReader("MIDTERM"), now)
	if err != nil {
		t.Fatalf("first Save: %v", err)
	}
	second, err := s.Save("S1", "final.png", strings.NewReader("FINAL"), now)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if first == second {
		t.Fatalf("both uploads named %q", first)
	}
	if second != "S1_1767225600_1.png" {
		t.Errorf("unexpected second name %q", second)
	}

	for name, want := range map[string]string{first: "MIDTERM", second: "FINAL"} {
		data, err := os.ReadFile(filepath.Join(s.Dir(), name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != want {
			t.Errorf("%s holds %q, want %q", name, data, want)
		}
	}
}

func TestSaveIgnoresDisallowedExtension(t *testing.T) {
	s := newTestSaver(t)

	name, err := s.Save("S1", "script.sh", strings.NewReader("#!/bin/sh"), time.Now())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "" {
		t.Errorf("expected no file, got %q", name)
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 0 {
		t.Errorf("expected empty upload dir, got %d entries", len(entries))
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"S1_1.png", "S1_1.png"},
		{"../../etc/passwd", "passwd"},
		{"my id/2_3.jpg", "2_3.jpg"},
		{"id number_5.gif", "id_number_5.gif"},
		{".hidden.png", "hidden.png"},
		{"", "photo"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SafeName(tt.in); got != tt.want {
				t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
