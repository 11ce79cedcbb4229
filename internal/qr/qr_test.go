package qr

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"
)

func TestPNG(t *testing.T) {
	data, err := PNG("http://localhost:8080/?exam=EX-2026-001", InlineSize)
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() < InlineSize || b.Dy() < InlineSize {
		t.Errorf("expected at least %dpx, got %dx%d", InlineSize, b.Dx(), b.Dy())
	}
}

func TestDataURLMatchesPNG(t *testing.T) {
	const url = "http://localhost:8080/?exam=EX-2026-002"

	got, err := DataURL(url)
	if err != nil {
		t.Fatalf("DataURL: %v", err)
	}
	if !strings.HasPrefix(got, dataURLPrefix) {
		t.Fatalf("expected %q prefix, got %q", dataURLPrefix, got[:min(len(got), 32)])
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, dataURLPrefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}

	want, err := PNG(url, InlineSize)
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	if !bytes.Equal(raw, want) {
		t.Error("same URL produced different images")
	}
}
