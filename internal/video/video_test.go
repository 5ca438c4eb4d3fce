package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func testJPEG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	img.Set(3, 3, color.Gray{Y: 255 - shade})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestJPEGSplitter(t *testing.T) {
	a, b := testJPEG(t, 10), testJPEG(t, 200)

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0xFF, 0x12}) // junk before the first image
	stream.Write(a)
	stream.Write(b)
	stream.Write([]byte{0xFF, 0xFF}) // trailing junk

	s := newJPEGSplitter(&stream)

	got1, err := s.next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if !bytes.Equal(got1, a) {
		t.Errorf("first frame differs: got %d bytes, want %d", len(got1), len(a))
	}
	if _, err := jpeg.Decode(bytes.NewReader(got1)); err != nil {
		t.Errorf("first frame does not decode: %v", err)
	}

	got2, err := s.next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if !bytes.Equal(got2, b) {
		t.Errorf("second frame differs: got %d bytes, want %d", len(got2), len(b))
	}

	if _, err := s.next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestJPEGSplitter_Truncated(t *testing.T) {
	a := testJPEG(t, 50)
	s := newJPEGSplitter(bytes.NewReader(a[:len(a)/2]))

	if _, err := s.next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestJPEGSplitter_LargerThanBuffer(t *testing.T) {
	// A frame bigger than the reader's buffer exercises the ErrBufferFull path.
	img := image.NewRGBA(image.Rect(0, 0, 512, 512))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() <= 64*1024 {
		t.Skipf("test image only %d bytes", buf.Len())
	}
	want := append([]byte(nil), buf.Bytes()...)

	got, err := newJPEGSplitter(&buf).next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("frame differs: got %d bytes, want %d", len(got), len(want))
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"frame_002.jpg": []byte("two"),
		"frame_001.JPG": []byte("one"),
		"frame_003.png": []byte("three"),
		"notes.txt":     []byte("skip"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	src, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer src.Close()

	if src.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", src.Len())
	}

	var got []string
	for {
		data, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, string(data))
	}

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.jpg", true},
		{"a.JPEG", true},
		{"a.webp", true},
		{"a.gif", true},
		{"a.mp4", false},
		{"jpg", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsImageFile(tt.name); got != tt.want {
			t.Errorf("IsImageFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOpener_MissingPath(t *testing.T) {
	o := NewOpener("", nil)
	if _, err := o.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestOpener_Directory(t *testing.T) {
	o := NewOpener("", nil)
	src, err := o.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if _, ok := src.(*DirSource); !ok {
		t.Errorf("expected *DirSource, got %T", src)
	}
}

func TestOpener_MissingBinary(t *testing.T) {
	video := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(video, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	o := NewOpener(filepath.Join(t.TempDir(), "no-ffmpeg-here"), nil)
	if _, err := o.Open(context.Background(), video); err == nil {
		t.Error("expected error when the ffmpeg binary is missing")
	}
}

// fakeFFmpeg writes a shell script that ignores its arguments and prints the
// file named by FAKE_FFMPEG_FRAMES.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\ncat \"$FAKE_FFMPEG_FRAMES\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFFmpegSource(t *testing.T) {
	bin := fakeFFmpeg(t)
	dir := t.TempDir()

	var stream bytes.Buffer
	for _, shade := range []uint8{0, 60, 120} {
		stream.Write(testJPEG(t, shade))
	}
	framesPath := filepath.Join(dir, "frames.mjpeg")
	if err := os.WriteFile(framesPath, stream.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FAKE_FFMPEG_FRAMES", framesPath)

	video := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(video, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewOpener(bin, nil).Open(context.Background(), video)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	n := 0
	for {
		frame, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if _, err := jpeg.Decode(bytes.NewReader(frame)); err != nil {
			t.Errorf("frame %d does not decode: %v", n, err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("read %d frames, want 3", n)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// second close is harmless
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Errorf("Write() = %d, %v, want 6, nil", n, err)
	}
	_, _ = b.Write([]byte("gh"))
	if b.String() != "abcd" {
		t.Errorf("String() = %q, want %q", b.String(), "abcd")
	}
}
