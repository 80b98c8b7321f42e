// Package intake validates uploaded resumes and stores them under the upload directory.
package intake

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/ai"
)

const DefaultMaxSize = 5 << 20

var (
	ErrEmpty           = errors.New("resume file is empty")
	ErrTooLarge        = errors.New("resume file is too large")
	ErrUnsupportedType = errors.New("only PDF, DOC and DOCX files are allowed")
	ErrContentMismatch = errors.New("file content does not match its extension")
)

var magicBytes = map[string][]byte{
	".pdf":  []byte("%PDF"),
	".doc":  {0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1},
	".docx": {0x50, 0x4B, 0x03, 0x04},
}

// Detected types are matched against these or any of their parents, so a
// docx detected as a plain zip container still passes.
var allowedMIME = map[string][]string{
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword", "application/x-ole-storage"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
}

// Stored describes a resume written to disk.
type Stored struct {
	Path     string
	Name     string
	MIMEType string
	Size     int64
}

type Intake struct {
	dir     string
	maxSize int64
	logger  *zap.Logger
}

func New(dir string, maxSize int64, logger *zap.Logger) (*Intake, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload directory %q", dir)
	}
	return &Intake{dir: dir, maxSize: maxSize, logger: logger}, nil
}

func (in *Intake) Dir() string { return in.dir }

// Save validates the upload and writes it under a random name keeping the
// original extension. The returned path is what evaluation reads later.
func (in *Intake) Save(filename string, r io.Reader) (*Stored, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !ai.SupportedExtension(ext) {
		return nil, errors.WithDetailf(ErrUnsupportedType, "extension %q", ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, in.maxSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > in.maxSize {
		return nil, errors.WithDetailf(ErrTooLarge, "limit is %d bytes", in.maxSize)
	}

	detected, err := checkContent(ext, data)
	if err != nil {
		return nil, err
	}

	name := uuid.NewString() + ext
	path := filepath.Join(in.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, errors.Wrap(err, "write resume")
	}

	in.logger.Debug("resume stored",
		zap.String("original", filepath.Base(filename)),
		zap.String("path", path),
		zap.String("detected_mime", detected),
		zap.Int("size", len(data)),
	)

	return &Stored{
		Path:     path,
		Name:     name,
		MIMEType: ai.MIMEType(path),
		Size:     int64(len(data)),
	}, nil
}

// Remove deletes a stored resume, ignoring files that are already gone.
func (in *Intake) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove resume")
	}
	return nil
}

func checkContent(ext string, data []byte) (string, error) {
	if !bytes.HasPrefix(data, magicBytes[ext]) {
		return "", errors.WithDetailf(ErrContentMismatch, "%s signature missing", ext)
	}

	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range allowedMIME[ext] {
			if m.Is(allowed) {
				return detected.String(), nil
			}
		}
	}
	return "", errors.WithDetailf(ErrContentMismatch, "detected %s for %s", detected.String(), ext)
}
