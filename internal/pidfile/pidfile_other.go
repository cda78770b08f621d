//go:build !linux

package pidfile

import "errors"

// PidFile is unavailable without memfd_create.
type PidFile struct{}

func New() (*PidFile, error) { return nil, errors.ErrUnsupported }

func (*PidFile) Publish(int) error { return errors.ErrUnsupported }

func (*PidFile) Fd() int { return -1 }

func (*PidFile) Close() error { return nil }
