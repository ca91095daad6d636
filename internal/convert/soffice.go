package convert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/koustreak/filegate/internal/errs"
)

// Soffice converts documents by running LibreOffice headless.
type Soffice struct {
	// Path is the soffice binary. Defaults to "soffice" on $PATH.
	Path string
}

// NewSoffice returns a Soffice converter running the binary at path.
func NewSoffice(path string) *Soffice {
	return &Soffice{Path: path}
}

// Convert runs soffice --convert-to against inputPath. soffice names its
// output after the input stem inside --outdir; the result is moved to
// outputPath when the two differ.
//
// Each run gets its own user profile next to the output so concurrent
// conversions do not contend on LibreOffice's profile lock.
func (s *Soffice) Convert(ctx context.Context, inputPath, outputPath string) error {
	bin := s.Path
	if bin == "" {
		bin = "soffice"
	}

	outDir := filepath.Dir(outputPath)
	target := strings.TrimPrefix(filepath.Ext(outputPath), ".")
	if target == "" {
		return errs.Invalid("output path %q has no extension", outputPath)
	}
	profile := filepath.Join(outDir, ".soffice-profile")

	cmd := exec.CommandContext(ctx, bin,
		"-env:UserInstallation=file://"+filepath.ToSlash(profile),
		"--headless",
		"--norestore",
		"--convert-to", target,
		"--outdir", outDir,
		inputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.ErrKindConversionFailed, "converter timed out", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errs.Wrap(errs.ErrKindConversionFailed, "converter exited with "+exitErr.String()+tail(stderr.String()), err)
		}
		return errs.Wrap(errs.ErrKindConversionFailed, "failed to start converter", err)
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	produced := filepath.Join(outDir, stem+"."+target)

	if _, err := os.Stat(produced); err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "converter produced no output", err)
	}
	if produced != outputPath {
		if err := os.Rename(produced, outputPath); err != nil {
			return errs.Wrap(errs.ErrKindConversionFailed, "failed to move converter output", err)
		}
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) > 200 {
		s = s[len(s)-200:]
	}
	return ": " + s
}
