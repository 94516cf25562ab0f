package archiver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Format names accepted by NewCompressor.
const (
	FormatZip      = "zip"
	FormatSevenZip = "7z"
	FormatBuiltin  = "builtin"
)

// ExecCompressor runs an external archiver inside the source folder.
type ExecCompressor struct {
	format string
	path   string

	// commandContext is swapped in tests.
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExecCompressor builds a compressor for format ("zip" or "7z"). binPath
// overrides the binary looked up in PATH.
func NewExecCompressor(format, binPath string) (*ExecCompressor, error) {
	switch format {
	case FormatZip, FormatSevenZip:
	default:
		return nil, fmt.Errorf("unsupported compressor format %q", format)
	}

	if binPath == "" {
		binPath = format
	}

	return &ExecCompressor{
		format:         format,
		path:           binPath,
		commandContext: exec.CommandContext,
	}, nil
}

func (c *ExecCompressor) Ext() string {
	if c.format == FormatSevenZip {
		return SevenZipExt
	}

	return ZipExt
}

func (c *ExecCompressor) args(dst string) []string {
	if c.format == FormatSevenZip {
		return []string{"a", "-y", "-bd", dst, "."}
	}

	return []string{"-r", "-q", dst, "."}
}

// Compress runs the tool with src as working directory. Exit status 0 is success.
func (c *ExecCompressor) Compress(ctx context.Context, src, dst string) error {
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("failed to resolve archive path: %w", err)
	}

	var stderr bytes.Buffer

	cmd := c.commandContext(ctx, c.path, c.args(absDst)...)
	cmd.Dir = src
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %w: %s", c.format, err, msg)
		}

		return fmt.Errorf("%s failed: %w", c.format, err)
	}

	return nil
}

// NewCompressor picks the compressor for a configured format.
func NewCompressor(format, binPath string) (Compressor, error) {
	if format == FormatBuiltin {
		return NewZipCompressor(), nil
	}

	return NewExecCompressor(format, binPath)
}
