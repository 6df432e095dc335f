package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

// ONNXPathEnv overrides the runtime location; fastembed reads it too.
const ONNXPathEnv = "ONNX_PATH"

// ErrUnsupportedPlatform means no ONNX runtime build exists for GOOS/GOARCH.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// onnxPlatform is one ONNX runtime release build.
type onnxPlatform struct {
	archive string // release archive suffix, e.g. linux-x64
	library string // shared library file name
}

var onnxPlatforms = map[string]onnxPlatform{
	"linux/amd64":  {archive: "linux-x64", library: "libonnxruntime.so"},
	"linux/arm64":  {archive: "linux-aarch64", library: "libonnxruntime.so"},
	"darwin/amd64": {archive: "osx-x86_64", library: "libonnxruntime.dylib"},
	"darwin/arm64": {archive: "osx-arm64", library: "libonnxruntime.dylib"},
}

func lookupPlatform(goos, goarch string) (onnxPlatform, error) {
	p, ok := onnxPlatforms[goos+"/"+goarch]
	if !ok {
		return onnxPlatform{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return p, nil
}

// RuntimeConfig locates the ONNX runtime install.
type RuntimeConfig struct {
	// Dir receives the shared library. Defaults to <cache_dir>/onnxruntime.
	Dir string
	// Version of the ONNX runtime release to install.
	Version string
	// ReleaseURL is the base of the release download URLs.
	ReleaseURL string
	// Client downloads the release. Defaults to a client with a 10 minute
	// timeout.
	Client *http.Client
}

// RuntimeConfigFromSettings installs the runtime next to the model cache.
func RuntimeConfigFromSettings(s config.EmbeddingsConfig) RuntimeConfig {
	return RuntimeConfig{
		Dir:        filepath.Join(s.CacheDir, "onnxruntime"),
		Version:    s.ONNXVersion,
		ReleaseURL: s.ONNXReleaseURL,
	}
}

// Runtime finds or installs the ONNX runtime shared library.
type Runtime struct {
	cfg      RuntimeConfig
	platform onnxPlatform
	logger   *zap.Logger
}

// NewRuntime returns a Runtime for the current platform.
func NewRuntime(cfg RuntimeConfig, logger *zap.Logger) (*Runtime, error) {
	return newRuntime(cfg, runtime.GOOS, runtime.GOARCH, logger)
}

func newRuntime(cfg RuntimeConfig, goos, goarch string, logger *zap.Logger) (*Runtime, error) {
	if cfg.Dir == "" || cfg.Version == "" || cfg.ReleaseURL == "" {
		return nil, fmt.Errorf("%w: onnx runtime dir, version and release url are required", ErrInvalidConfig)
	}
	p, err := lookupPlatform(goos, goarch)
	if err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Minute}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{cfg: cfg, platform: p, logger: logger}, nil
}

// Version is the release this Runtime installs.
func (r *Runtime) Version() string { return r.cfg.Version }

// LibraryPath returns ONNX_PATH when set, else the installed library, else "".
func (r *Runtime) LibraryPath() string {
	if p := os.Getenv(ONNXPathEnv); p != "" {
		return p
	}
	p := filepath.Join(r.cfg.Dir, r.platform.library)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// DownloadURL is the release archive for this platform and version.
func (r *Runtime) DownloadURL() string {
	return fmt.Sprintf("%s/v%s/%s.tgz", strings.TrimRight(r.cfg.ReleaseURL, "/"), r.cfg.Version, r.archiveRoot())
}

// archiveRoot is the top-level directory inside the release archive.
func (r *Runtime) archiveRoot() string {
	return fmt.Sprintf("onnxruntime-%s-%s", r.platform.archive, r.cfg.Version)
}

// Ensure returns the library path, installing the runtime when it is
// missing, and exports ONNX_PATH for fastembed.
func (r *Runtime) Ensure(ctx context.Context) (string, error) {
	p := r.LibraryPath()
	if p == "" {
		var err error
		if p, err = r.Install(ctx); err != nil {
			return "", fmt.Errorf("%w (set %s to use an existing install)", err, ONNXPathEnv)
		}
	}
	if err := os.Setenv(ONNXPathEnv, p); err != nil {
		return "", fmt.Errorf("setting %s: %w", ONNXPathEnv, err)
	}
	return p, nil
}

// Install downloads the release archive and extracts its lib/ directory
// into the install dir, replacing any previous install.
func (r *Runtime) Install(ctx context.Context) (string, error) {
	url := r.DownloadURL()
	r.logger.Info("installing onnx runtime",
		zap.String("version", r.cfg.Version),
		zap.String("url", url),
		zap.String("dir", r.cfg.Dir))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading onnx runtime: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading onnx runtime: %s returned status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(r.cfg.Dir, 0o700); err != nil {
		return "", fmt.Errorf("creating %s: %w", r.cfg.Dir, err)
	}

	body := &downloadProgress{r: resp.Body, total: resp.ContentLength, logger: r.logger, next: 0.25}
	files, err := r.extract(body)
	if err != nil {
		return "", fmt.Errorf("extracting onnx runtime: %w", err)
	}

	p := filepath.Join(r.cfg.Dir, r.platform.library)
	r.logger.Info("onnx runtime installed",
		zap.String("path", p),
		zap.Int("files", files),
		zap.String("size", humanize.Bytes(uint64(body.read))))
	return p, nil
}

// extract copies regular files and symlinks under <root>/lib/ into the
// install dir. Files are written to a temp name and renamed so a failed
// download never leaves a truncated library behind.
func (r *Runtime) extract(src io.Reader) (int, error) {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	prefix := r.archiveRoot() + "/lib/"
	var (
		files      int
		hasLibrary bool
	)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return files, err
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		base := path.Base(name)
		// Nested directories are not part of the runtime; the check also
		// keeps entries from escaping the install dir.
		if strings.Contains(strings.TrimPrefix(name, prefix), "/") || base == "." || base == ".." {
			continue
		}
		dest := filepath.Join(r.cfg.Dir, base)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			if strings.Contains(hdr.Linkname, "/") {
				continue
			}
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				r.logger.Debug("skipping symlink", zap.String("name", base), zap.Error(err))
				continue
			}
		case tar.TypeReg:
			if err := writeFileAtomic(dest, tr, 0o644); err != nil {
				return files, fmt.Errorf("writing %s: %w", base, err)
			}
		default:
			continue
		}

		files++
		if base == r.platform.library || strings.HasPrefix(base, r.platform.library+".") {
			hasLibrary = true
		}
	}

	if !hasLibrary {
		return files, fmt.Errorf("%s not found in archive", r.platform.library)
	}
	return files, nil
}

func writeFileAtomic(dest string, src io.Reader, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// downloadProgress logs each quarter of a download with a known length.
type downloadProgress struct {
	r      io.Reader
	total  int64
	read   int64
	next   float64
	logger *zap.Logger
}

func (d *downloadProgress) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	d.read += int64(n)
	if d.total > 0 && d.next <= 1 && float64(d.read)/float64(d.total) >= d.next {
		d.logger.Info("downloading onnx runtime",
			zap.String("progress", fmt.Sprintf("%.0f%%", d.next*100)),
			zap.String("downloaded", humanize.Bytes(uint64(d.read))),
			zap.String("total", humanize.Bytes(uint64(d.total))))
		for d.next <= 1 && float64(d.read)/float64(d.total) >= d.next {
			d.next += 0.25
		}
	}
	return n, err
}
