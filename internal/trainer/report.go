package trainer

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Report appends one JSON object per line to <dir>/<experiment id>.log.
type Report struct {
	f *os.File
}

func OpenReport(dir, experimentID string) (*Report, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log dir %s", dir)
	}
	path := filepath.Join(dir, experimentID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open report %s", path)
	}
	return &Report{f: f}, nil
}

func (r *Report) Path() string { return r.f.Name() }

func (r *Report) Write(record any) error {
	raw, err := sonic.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encode report record")
	}
	raw = append(raw, '\n')
	if _, err := r.f.Write(raw); err != nil {
		return errors.Wrap(err, "write report record")
	}
	return nil
}

func (r *Report) Close() error {
	return r.f.Close()
}
