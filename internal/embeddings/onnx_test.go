package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

type tarEntry struct {
	name string
	link string
	body string
}

func releaseArchive(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644}
		if e.link != "" {
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.link == "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// newReleaseServer serves archive at the linux-x64 1.23.0 release path.
func newReleaseServer(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.23.0/onnxruntime-linux-x64-1.23.0.tgz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLinuxRuntime(t *testing.T, releaseURL string) *Runtime {
	t.Helper()
	rt, err := newRuntime(RuntimeConfig{
		Dir:        filepath.Join(t.TempDir(), "onnxruntime"),
		Version:    "1.23.0",
		ReleaseURL: releaseURL,
	}, "linux", "amd64", zap.NewNop())
	require.NoError(t, err)
	return rt
}

func TestRuntime_Install(t *testing.T) {
	t.Setenv(ONNXPathEnv, "")
	archive := releaseArchive(t,
		tarEntry{name: "onnxruntime-linux-x64-1.23.0/README.md", body: "readme"},
		tarEntry{name: "onnxruntime-linux-x64-1.23.0/lib/libonnxruntime.so.1.23.0", body: "ELF"},
		tarEntry{name: "onnxruntime-linux-x64-1.23.0/lib/libonnxruntime.so", link: "libonnxruntime.so.1.23.0"},
		tarEntry{name: "onnxruntime-linux-x64-1.23.0/lib/pkgconfig/libonnxruntime.pc", body: "pc"},
		tarEntry{name: "onnxruntime-linux-x64-1.23.0/lib/escape.so", link: "../../etc/passwd"},
	)
	srv := newReleaseServer(t, archive)
	rt := newLinuxRuntime(t, srv.URL+"/")

	assert.Equal(t, srv.URL+"/v1.23.0/onnxruntime-linux-x64-1.23.0.tgz", rt.DownloadURL())
	assert.Empty(t, rt.LibraryPath())

	path, err := rt.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rt.cfg.Dir, "libonnxruntime.so"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ELF", string(data))
	assert.Equal(t, path, rt.LibraryPath())

	t.Run("skips files outside lib", func(t *testing.T) {
		for _, name := range []string{"README.md", "libonnxruntime.pc", "escape.so"} {
			_, err := os.Lstat(filepath.Join(rt.cfg.Dir, name))
			assert.True(t, os.IsNotExist(err), name)
		}
	})
}

func TestRuntime_Install_Errors(t *testing.T) {
	t.Run("library missing from archive", func(t *testing.T) {
		srv := newReleaseServer(t, releaseArchive(t,
			tarEntry{name: "onnxruntime-linux-x64-1.23.0/lib/other.so", body: "x"},
		))
		_, err := newLinuxRuntime(t, srv.URL).Install(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "libonnxruntime.so not found")
	})

	t.Run("release not found", func(t *testing.T) {
		srv := newReleaseServer(t, nil)
		rt, err := newRuntime(RuntimeConfig{
			Dir:        t.TempDir(),
			Version:    "9.9.9",
			ReleaseURL: srv.URL,
		}, "linux", "amd64", nil)
		require.NoError(t, err)

		_, err = rt.Install(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})
}

func TestRuntime_Ensure(t *testing.T) {
	t.Run("installs and exports the path", func(t *testing.T) {
		t.Setenv(ONNXPathEnv, "")
		srv := newReleaseServer(t, releaseArchive(t,
			tarEntry{name: "onnxruntime-linux-x64-1.23.0/lib/libonnxruntime.so", body: "ELF"},
		))
		rt := newLinuxRuntime(t, srv.URL)

		path, err := rt.Ensure(context.Background())
		require.NoError(t, err)
		assert.Equal(t, path, os.Getenv(ONNXPathEnv))
	})

	t.Run("environment override skips the download", func(t *testing.T) {
		t.Setenv(ONNXPathEnv, "/opt/onnx/libonnxruntime.so")
		rt := newLinuxRuntime(t, "http://127.0.0.1:0")

		path, err := rt.Ensure(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/opt/onnx/libonnxruntime.so", path)
	})
}

func TestNewRuntime_Validation(t *testing.T) {
	valid := RuntimeConfig{Dir: "/tmp/onnx", Version: "1.23.0", ReleaseURL: "https://example.com"}

	t.Run("unsupported platform", func(t *testing.T) {
		_, err := newRuntime(valid, "windows", "amd64", nil)
		assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	})

	t.Run("missing version", func(t *testing.T) {
		cfg := valid
		cfg.Version = ""
		_, err := newRuntime(cfg, "linux", "amd64", nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("darwin library name", func(t *testing.T) {
		rt, err := newRuntime(valid, "darwin", "arm64", nil)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/v1.23.0/onnxruntime-osx-arm64-1.23.0.tgz", rt.DownloadURL())
		assert.Equal(t, "libonnxruntime.dylib", rt.platform.library)
	})
}

func TestRuntimeConfigFromSettings(t *testing.T) {
	settings := config.Default().Embeddings
	settings.CacheDir = "/var/cache/codematrix"

	cfg := RuntimeConfigFromSettings(settings)
	assert.Equal(t, filepath.Join("/var/cache/codematrix", "onnxruntime"), cfg.Dir)
	assert.Equal(t, "1.23.0", cfg.Version)
}
