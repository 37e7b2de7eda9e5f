package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.jpg":
			w.Write([]byte("jpeg-bytes"))
		case "/missing":
			http.NotFound(w, r)
		default:
			w.Write([]byte("data"))
		}
	}))
	defer srv.Close()

	d, err := NewDownloader(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	dest, err := d.Download(context.Background(), srv.URL+"/img.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(dest) != ".jpg" {
		t.Errorf("dest = %s, want original extension kept", dest)
	}
	raw, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "jpeg-bytes" {
		t.Errorf("content = %q", raw)
	}
}

func TestDownload_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d, err := NewDownloader(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.Download(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("want error for 404 response")
	} else if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("error = %v, want status in message", err)
	}
}

func TestDownload_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	d, err := NewDownloader(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Download(ctx, srv.URL+"/x"); err == nil {
		t.Fatal("want error on cancelled context")
	}
}

func TestNewDownloader_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "media")
	if _, err := NewDownloader(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("media dir not created")
	}
}
