package delivery

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/playlist_archiver/internal/archiver"
	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/telemetry"
)

var contentTypes = map[string]string{
	archiver.ZipExt:      "application/zip",
	archiver.SevenZipExt: "application/x-7z-compressed",
}

// Coordinator streams archives to clients and removes them once delivered.
type Coordinator struct {
	telemetry *telemetry.Telemetry
}

func NewCoordinator(tel *telemetry.Telemetry) *Coordinator {
	return &Coordinator{telemetry: tel}
}

// Deliver writes the archive to w under its display name. After a complete
// copy the archive is removed. On a copy error it stays on disk for the
// cleanup sweeper and a DeliveryError is returned.
func (c *Coordinator) Deliver(ctx context.Context, w http.ResponseWriter, archive *archiver.Archive) error {
	logger := logctx.LoggerFromContext(ctx).With("archive", archive.UniqueName)

	f, err := os.Open(archive.Path)
	if err != nil {
		c.telemetry.RecordDelivery(ctx, "error", 0)

		return &playlist.DeliveryError{Archive: archive.UniqueName, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		c.telemetry.RecordDelivery(ctx, "error", 0)

		return &playlist.DeliveryError{Archive: archive.UniqueName, Err: err}
	}

	h := w.Header()
	h.Set("Content-Type", contentType(archive.DisplayName))
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("Content-Disposition", ContentDisposition(archive.DisplayName))
	w.WriteHeader(http.StatusOK)

	n, copyErr := io.Copy(w, readerWithContext(ctx, f))
	f.Close()

	if copyErr == nil && n != info.Size() {
		copyErr = fmt.Errorf("short write: %d of %d bytes", n, info.Size())
	}

	if copyErr != nil {
		c.telemetry.RecordDelivery(ctx, "error", n)
		logger.Warn("archive delivery interrupted, keeping file", "sent", humanize.Bytes(uint64(n)), "err", copyErr)

		return &playlist.DeliveryError{Archive: archive.UniqueName, Err: copyErr}
	}

	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}

	c.telemetry.RecordDelivery(ctx, "success", n)
	logger.Info("archive delivered", "size", humanize.Bytes(uint64(n)))

	if err := archive.Remove(); err != nil {
		logger.Warn("failed to remove delivered archive", "err", err)
	}

	return nil
}

// ContentDisposition builds an attachment header. Non-ASCII names are sent as
// an RFC 5987 encoded filename* parameter.
func ContentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}

	return "attachment"
}

func contentType(name string) string {
	for ext, ct := range contentTypes {
		if strings.HasSuffix(name, ext) {
			return ct
		}
	}

	return "application/octet-stream"
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
