package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newStore(t *testing.T, name string) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), name), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func sampleGallery() map[string][][]float32 {
	return map[string][][]float32{
		"alice": {{0.1, 0.2, 0.3}, {0.3, 0.2, 0.1}},
		"bob":   {{1, 0, 0}},
	}
}

func assertGalleryEqual(t *testing.T, got, want map[string][][]float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d identities, want %d", len(got), len(want))
	}
	for id, wantEmbs := range want {
		gotEmbs, ok := got[id]
		if !ok {
			t.Errorf("missing identity %q", id)
			continue
		}
		if len(gotEmbs) != len(wantEmbs) {
			t.Errorf("%s: got %d embeddings, want %d", id, len(gotEmbs), len(wantEmbs))
			continue
		}
		for i := range wantEmbs {
			if len(gotEmbs[i]) != len(wantEmbs[i]) {
				t.Errorf("%s[%d]: dim %d, want %d", id, i, len(gotEmbs[i]), len(wantEmbs[i]))
				continue
			}
			for j := range wantEmbs[i] {
				if gotEmbs[i][j] != wantEmbs[i][j] {
					t.Errorf("%s[%d][%d] = %v, want %v", id, i, j, gotEmbs[i][j], wantEmbs[i][j])
				}
			}
		}
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s := newStore(t, "faces_db.json")

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil gallery, got %v", got)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, name := range []string{"faces_db.json", "faces.msgpack", "faces.MPK"} {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, name)
			ctx := context.Background()

			if err := s.Save(ctx, sampleGallery()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			assertGalleryEqual(t, got, sampleGallery())
		})
	}
}

func TestLoad_LegacyFlatJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces_db.json")
	doc := `{"alice": [0.5, 0.25, 0.125], "bob": [[1, 0, 0], [0, 1, 0]]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := New(path, nil)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertGalleryEqual(t, got, map[string][][]float32{
		"alice": {{0.5, 0.25, 0.125}},
		"bob":   {{1, 0, 0}, {0, 1, 0}},
	})
}

func TestLoad_LegacyFlatMsgpack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.msgpack")
	data, err := msgpack.Marshal(map[string]any{
		"alice": []float64{0.5, 0.25},
		"bob":   [][]int{{1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := New(path, nil)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertGalleryEqual(t, got, map[string][][]float32{
		"alice": {{0.5, 0.25}},
		"bob":   {{1, 0}},
	})
}

func TestLoad_BadShapeSkippedWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces_db.json")
	doc := `{"alice": [[1, 0], [0, 1]], "broken": [[1, 2], [3]], "weird": {"a": 1}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zap.WarnLevel)
	s, _ := New(path, zap.New(core))

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || len(got["alice"]) != 2 {
		t.Errorf("expected only alice to load, got %v", got)
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 warnings, got %d", logs.Len())
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces_db.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := New(path, nil)

	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces_db.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := New(path, nil)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty gallery, got %v", got)
	}
}

func TestSave_ReplacesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "faces_db.json")
	s, _ := New(path, nil)
	ctx := context.Background()

	if err := s.Save(ctx, sampleGallery()); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := s.Save(ctx, map[string][][]float32{"carol": {{0, 0, 1}}}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got["carol"] == nil {
		t.Errorf("second save should replace the gallery, got %v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected only the gallery file, found %v", names)
	}
}

func TestSave_NilGallery(t *testing.T) {
	s := newStore(t, "faces_db.json")
	if err := s.Save(context.Background(), nil); err != nil {
		t.Fatalf("Save(nil): %v", err)
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}" {
		t.Errorf("expected empty object, got %q", data)
	}
}

func TestCodecFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"faces_db.json", "json"},
		{"faces", "json"},
		{"faces.msgpack", "msgpack"},
		{"/data/faces.mpk", "msgpack"},
	}
	for _, tt := range tests {
		if got := CodecFor(tt.path).Name(); got != tt.want {
			t.Errorf("CodecFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New("", nil); err == nil {
		t.Error("expected error for empty path")
	}
}
