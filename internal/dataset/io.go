package dataset

import (
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Example is one labeled row of a dataset file.
type Example struct {
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

type fileFormat struct {
	Name     string    `json:"name"`
	Examples []Example `json:"examples"`
}

const zstdSuffix = ".zst"

// Load reads a JSON dataset file. Paths ending in .zst are zstd-compressed.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, zstdSuffix) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create zstd reader")
		}
		defer dec.Close()
		r = dec
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset %s", path)
	}
	var ff fileFormat
	if err := sonic.Unmarshal(raw, &ff); err != nil {
		return nil, errors.Wrapf(err, "decode dataset %s", path)
	}
	return fromExamples(ff.Name, ff.Examples)
}

// Save writes d as JSON, zstd-compressed when path ends in .zst.
func Save(path string, d *Dataset) error {
	ff := fileFormat{Name: d.Name, Examples: make([]Example, d.Len())}
	for i := range ff.Examples {
		ff.Examples[i] = Example{
			Features: mat.Row(nil, i, d.X),
			Label:    d.Y[i],
		}
	}
	raw, err := sonic.Marshal(ff)
	if err != nil {
		return errors.Wrap(err, "encode dataset")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create dataset file")
	}
	return writeEncoded(f, raw, strings.HasSuffix(path, zstdSuffix))
}

// writeEncoded writes raw to w, zstd-compressed when compress is set, and
// closes w. A failed close is reported like a failed write.
func writeEncoded(w io.WriteCloser, raw []byte, compress bool) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close dataset file")
		}
	}()

	if !compress {
		_, err = w.Write(raw)
		return errors.Wrap(err, "write dataset")
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return errors.Wrap(err, "create zstd writer")
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return errors.Wrap(err, "write compressed dataset")
	}
	return errors.Wrap(enc.Close(), "flush compressed dataset")
}

func fromExamples(name string, examples []Example) (*Dataset, error) {
	if len(examples) == 0 {
		return nil, ErrEmpty
	}
	cols := len(examples[0].Features)
	x := mat.NewDense(len(examples), cols, nil)
	y := make([]int, len(examples))
	for i, ex := range examples {
		if len(ex.Features) != cols {
			return nil, errors.Wrapf(ErrRaggedRows, "row %d has %d features, want %d", i, len(ex.Features), cols)
		}
		x.SetRow(i, ex.Features)
		y[i] = ex.Label
	}
	return New(name, x, y)
}
