package models

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofrs/flock"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ErrInstallInProgress is returned when another process holds the install
// lock of the models root.
var ErrInstallInProgress = errors.New("another model install is in progress")

// ErrNotPublished is returned for registry entries without an archive URL and
// checksum.
var ErrNotPublished = errors.New("model archive not published")

type Progress struct {
	Downloaded int64
	Total      int64
	SpeedMBps  float64
	ETA        time.Duration
}

type ProgressCallback func(Progress)

type Downloader struct {
	Client    *http.Client
	Retries   int
	RetryWait time.Duration
	Logger    *zap.Logger

	mu sync.Mutex
}

func NewDownloader() *Downloader {
	return &Downloader{
		Client:    &http.Client{Timeout: 0},
		Retries:   2,
		RetryWait: 500 * time.Millisecond,
		Logger:    zap.NewNop(),
	}
}

func (d *Downloader) DownloadAndInstall(ctx context.Context, model ModelSpec, modelsRoot string, onProgress ProgressCallback) error {
	if !model.Published() {
		return fmt.Errorf("%s: %w; list it with url and checksum in a registry file set as model.registry", model.Name, ErrNotPublished)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(modelsRoot, 0o755); err != nil {
		return err
	}
	lock := flock.New(filepath.Join(modelsRoot, ".install.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire install lock: %w", err)
	}
	if !locked {
		return ErrInstallInProgress
	}
	defer func() { _ = lock.Unlock() }()

	tmpDir, err := os.MkdirTemp(modelsRoot, model.Name+"-download-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, model.Name+".tar.gz")
	if err := d.downloadWithRetry(ctx, model.URL, archivePath, onProgress); err != nil {
		return err
	}
	if err := VerifyChecksum(archivePath, model.Checksum); err != nil {
		return err
	}
	if err := checkArchiveType(archivePath); err != nil {
		return err
	}

	extractDir := filepath.Join(tmpDir, "extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return err
	}
	if err := ExtractTarGz(archivePath, extractDir); err != nil {
		return err
	}

	if err := ValidateModelDir(extractDir); err != nil {
		return err
	}
	if err := writeLabels(extractDir, model.Name); err != nil {
		return fmt.Errorf("model labels: %w", err)
	}

	finalPath := ModelInstallPath(modelsRoot, model.Name)
	oldPath := finalPath + ".bak"
	_ = os.RemoveAll(oldPath)
	if _, err := os.Stat(finalPath); err == nil {
		if err := os.Rename(finalPath, oldPath); err != nil {
			return err
		}
	}
	if err := os.Rename(extractDir, finalPath); err != nil {
		_ = os.Rename(oldPath, finalPath)
		return err
	}
	if err := os.WriteFile(filepath.Join(finalPath, ".checksum"), []byte(model.Checksum+"\n"), 0o644); err != nil {
		return err
	}
	_ = os.RemoveAll(oldPath)
	d.logger().Info("model installed", zap.String("model", model.Name), zap.String("path", finalPath))
	return nil
}

func (d *Downloader) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Downloader) downloadWithRetry(ctx context.Context, url, dest string, onProgress ProgressCallback) error {
	wait := d.RetryWait
	err := d.download(ctx, url, dest, onProgress)
	for attempt := 1; err != nil && attempt <= d.Retries; attempt++ {
		d.logger().Warn("model download attempt failed",
			zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		err = d.download(ctx, url, dest, onProgress)
	}
	if err != nil {
		return fmt.Errorf("download failed after %d attempts: %w", d.Retries+1, err)
	}
	return nil
}

// progressWriter counts archive bytes as they are written and reports
// throughput to the callback.
type progressWriter struct {
	total   int64
	written int64
	start   time.Time
	report  ProgressCallback
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.report != nil {
		p.report(p.snapshot())
	}
	return len(b), nil
}

func (p *progressWriter) snapshot() Progress {
	pr := Progress{Downloaded: p.written, Total: p.total}
	if secs := time.Since(p.start).Seconds(); secs > 0 {
		pr.SpeedMBps = float64(p.written) / secs / (1 << 20)
	}
	if p.total > 0 && pr.SpeedMBps > 0 {
		left := float64(p.total-p.written) / (1 << 20)
		pr.ETA = time.Duration(left / pr.SpeedMBps * float64(time.Second))
	}
	return pr
}

// localArchive reports whether url names a file on disk (file:// or an
// absolute path), which user registries use for self-exported models.
func localArchive(url string) (string, bool) {
	if p, ok := strings.CutPrefix(url, "file://"); ok {
		return p, true
	}
	return url, filepath.IsAbs(url)
}

func copyLocal(src, dest string, onProgress ProgressCallback) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	pw := &progressWriter{total: info.Size(), start: time.Now(), report: onProgress}
	if _, err := io.Copy(io.MultiWriter(out, pw), in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (d *Downloader) download(ctx context.Context, url, dest string, onProgress ProgressCallback) error {
	if path, ok := localArchive(url); ok {
		return copyLocal(path, dest, onProgress)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	pw := &progressWriter{total: resp.ContentLength, start: time.Now(), report: onProgress}
	if _, err := io.Copy(io.MultiWriter(out, pw), resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum compares the file digest against a "sha256:<hex>" value.
func VerifyChecksum(file, expected string) error {
	algo, want, ok := strings.Cut(strings.TrimSpace(expected), ":")
	if !ok || want == "" {
		return fmt.Errorf("checksum missing")
	}
	if algo != "sha256" {
		return fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
	got, err := fileDigest(file)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch: expected sha256:%s, got sha256:%s", want, got)
	}
	return nil
}

func checkArchiveType(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect archive type: %w", err)
	}
	if !mt.Is("application/gzip") {
		return fmt.Errorf("unexpected archive type %s, want application/gzip", mt.String())
	}
	return nil
}

// ExtractTarGz unpacks regular files and directories into dest. Entries that
// would land outside dest, links and devices are skipped.
func ExtractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		name := filepath.Clean(hdr.Name)
		if !filepath.IsLocal(name) {
			continue
		}
		if err := extractEntry(tr, hdr, filepath.Join(dest, name)); err != nil {
			return err
		}
	}
}

func extractEntry(r io.Reader, hdr *tar.Header, target string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	}
	return nil
}

// ValidateModelDir accepts model files at base or inside a single nested
// directory, which is how release archives are packed; nested files are
// moved up to base.
func ValidateModelDir(base string) error {
	if hasRequiredFiles(base) {
		return nil
	}
	entries, _ := os.ReadDir(base)
	for _, e := range entries {
		nested := filepath.Join(base, e.Name())
		if e.IsDir() && hasRequiredFiles(nested) {
			return hoistModelFiles(nested, base)
		}
	}
	return fmt.Errorf("invalid model archive: missing %s", strings.Join(RequiredFiles, " or "))
}

func hoistModelFiles(from, base string) error {
	for _, f := range slices.Concat(RequiredFiles, optionalFiles) {
		src := filepath.Join(from, f)
		if !fileExists(src) {
			continue
		}
		if err := os.Rename(src, filepath.Join(base, f)); err != nil {
			return err
		}
	}
	return nil
}

// VerifyInstalled checks that an installed model has its required files and
// that the archive checksum recorded at install time matches the registry.
func VerifyInstalled(root string, model ModelSpec) error {
	base := ModelInstallPath(root, model.Name)
	if missing := lo.Reject(RequiredFiles, func(f string, _ int) bool { return fileExists(filepath.Join(base, f)) }); len(missing) > 0 {
		return fmt.Errorf("model %s: missing %s", model.Name, strings.Join(missing, ", "))
	}
	raw, err := os.ReadFile(filepath.Join(base, ".checksum"))
	if err != nil {
		return fmt.Errorf("model %s: no recorded checksum", model.Name)
	}
	if got := strings.TrimSpace(string(raw)); got != model.Checksum {
		return fmt.Errorf("model %s: recorded checksum %s does not match registry %s", model.Name, got, model.Checksum)
	}
	return nil
}
