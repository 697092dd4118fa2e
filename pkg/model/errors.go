package model

import "github.com/pkg/errors"

// ErrConfig marks an unusable configuration or vocabulary, such as sampling
// without a start token.
var ErrConfig = errors.New("config error")

func configErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}
