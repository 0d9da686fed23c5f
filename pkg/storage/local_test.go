package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/huangang/erpsettings/internal/config"
)

func TestLocalStore_PutGetOverwrite(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(root)
	ctx := context.Background()

	if err := s.Put(ctx, "assets/img/logo.png", []byte("v1"), "image/png"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "assets/img/logo.png", []byte("v2"), "image/png"); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}

	got, err := s.Get(ctx, "assets/img/logo.png")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("expected overwritten content v2, got %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, "assets", "img", "logo.png")); err != nil {
		t.Errorf("expected file on disk: %v", err)
	}
}

func TestLocalStore_GetMissing(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	if _, err := s.Get(context.Background(), "nope.txt"); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestLocalStore_PathsStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(filepath.Join(root, "public"))
	ctx := context.Background()

	if err := s.Put(ctx, "../../escape.txt", []byte("x"), "text/plain"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "public", "escape.txt")); err != nil {
		t.Errorf("expected path to be clamped under root: %v", err)
	}
	if err := s.Put(ctx, "", []byte("x"), ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestLocalStore_List(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	for _, p := range []string{"backups/b.json", "backups/a.json", "assets/css/theme.css"} {
		if err := s.Put(ctx, p, []byte("{}"), "application/json"); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.List(ctx, "backups/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0] != "backups/a.json" || got[1] != "backups/b.json" {
		t.Errorf("List() = %v", got)
	}
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "never-created"))
	got, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty listing, got %v", got)
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	if _, err := New(config.StorageConfig{Driver: "ftp"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
