package volume

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"synthbridge/internal/fileutil"
)

// ErrUnsupportedFormat reports a path whose format cannot be read or written.
var ErrUnsupportedFormat = errors.New("unsupported volume format")

// Format identifies an on-disk volume container.
type Format int

const (
	FormatUnknown Format = iota
	FormatMGH
	FormatMGZ
	FormatNIfTI
	FormatNIfTIGz
	FormatDICOM
)

func (f Format) String() string {
	switch f {
	case FormatMGH:
		return "mgh"
	case FormatMGZ:
		return "mgz"
	case FormatNIfTI:
		return "nifti"
	case FormatNIfTIGz:
		return "nifti-gz"
	case FormatDICOM:
		return "dicom"
	default:
		return "unknown"
	}
}

func (f Format) compressed() bool {
	return f == FormatMGZ || f == FormatNIfTIGz
}

// DetectFormat infers the format from the file extension. Directories are
// treated as DICOM series.
func DetectFormat(path string) Format {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return FormatDICOM
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".nii.gz"):
		return FormatNIfTIGz
	case strings.HasSuffix(lower, ".nii"):
		return FormatNIfTI
	case strings.HasSuffix(lower, ".mgz"), strings.HasSuffix(lower, ".mgh.gz"):
		return FormatMGZ
	case strings.HasSuffix(lower, ".mgh"):
		return FormatMGH
	case strings.HasSuffix(lower, ".dcm"):
		return FormatDICOM
	default:
		return FormatUnknown
	}
}

// Load reads a volume from path, naming it after the file.
func Load(path string) (*Volume, error) {
	format := DetectFormat(path)
	var (
		v   *Volume
		err error
	)
	switch format {
	case FormatDICOM:
		v, err = LoadDICOMSeries(path)
	case FormatMGH, FormatMGZ, FormatNIfTI, FormatNIfTIGz:
		v, err = loadFile(path, format)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	v.Name = volumeName(path)
	return v, nil
}

func loadFile(path string, format Format) (*Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r io.Reader = file
	if format.compressed() {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	switch format {
	case FormatMGH, FormatMGZ:
		return ReadMGH(r)
	default:
		return ReadNIfTI(r)
	}
}

// Save writes v to path in the format implied by its extension. The file
// is replaced atomically.
func Save(path string, v *Volume) error {
	if err := CheckWritable(path); err != nil {
		return err
	}
	format := DetectFormat(path)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return encode(w, format, v)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// CheckWritable reports whether Save supports the format implied by path.
func CheckWritable(path string) error {
	switch DetectFormat(path) {
	case FormatMGH, FormatMGZ, FormatNIfTI, FormatNIfTIGz:
		return nil
	case FormatDICOM:
		return fmt.Errorf("%w: dicom output is not supported (%s)", ErrUnsupportedFormat, path)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func encode(w io.Writer, format Format, v *Volume) error {
	if !format.compressed() {
		if format == FormatMGH {
			return WriteMGH(w, v)
		}
		return WriteNIfTI(w, v)
	}
	gz := gzip.NewWriter(w)
	var err error
	if format == FormatMGZ {
		err = WriteMGH(gz, v)
	} else {
		err = WriteNIfTI(gz, v)
	}
	if err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}

func volumeName(path string) string {
	base := filepath.Base(filepath.Clean(path))
	lower := strings.ToLower(base)
	for _, ext := range []string{".nii.gz", ".mgh.gz", ".nii", ".mgz", ".mgh", ".dcm"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}
