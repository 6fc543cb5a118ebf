// Package flowerr defines the error kinds surfaced by the flowcore packages.
//
// Errors are built on github.com/cockroachdb/errors so they carry stack
// traces and survive further wrapping. Each kind is a marker: test for it with
// errors.Is (or the Is* helpers) rather than by message.
//
//	data, err := frame.Data()
//	if flowerr.IsIO(err) {
//	    // backing file vanished or is truncated
//	}
//
// Parsing and derivation errors are structural problems with the data, not
// transient faults, so nothing in flowcore retries them.
package flowerr

import (
	crdb "github.com/cockroachdb/errors"
)

// Re-exported helpers so callers need a single errors import.
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithHint    = crdb.WithHint
	WithDetailf = crdb.WithDetailf
	Is          = crdb.Is
	As          = crdb.As
)

// Error kinds.
var (
	// ErrFormat marks malformed or unsupported FCS structure: bad header,
	// unsupported version or mode, missing required keyword, offsets that
	// disagree with the stream length.
	ErrFormat = crdb.New("format error")

	// ErrDimension marks channel-count or matrix-shape mismatches between a
	// gate or compensation matrix and the data it is applied to, including
	// singular matrices.
	ErrDimension = crdb.New("dimension error")

	// ErrMissingData marks a derived value that cannot be produced because
	// its input is absent, e.g. compensation without a spillover matrix.
	ErrMissingData = crdb.New("missing data")

	// ErrIO marks unreadable or truncated backing storage.
	ErrIO = crdb.New("i/o error")

	// ErrDomain marks transform parameters outside their valid range.
	ErrDomain = crdb.New("domain error")
)

// Formatf returns a new error marked as ErrFormat.
func Formatf(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrFormat)
}

// Dimensionf returns a new error marked as ErrDimension.
func Dimensionf(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrDimension)
}

// MissingDataf returns a new error marked as ErrMissingData.
func MissingDataf(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrMissingData)
}

// Domainf returns a new error marked as ErrDomain.
func Domainf(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrDomain)
}

// IOf returns a new error marked as ErrIO.
func IOf(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrIO)
}

// WrapIO wraps err with context and marks it as ErrIO. The original error
// stays reachable through errors.Is (e.g. fs.ErrNotExist). Returns nil when
// err is nil.
func WrapIO(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return crdb.Mark(crdb.WrapWithDepthf(1, err, format, args...), ErrIO)
}

// WrapFormat wraps err with context and marks it as ErrFormat.
func WrapFormat(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return crdb.Mark(crdb.WrapWithDepthf(1, err, format, args...), ErrFormat)
}

// IsFormat reports whether err is or wraps an ErrFormat error.
func IsFormat(err error) bool { return err != nil && crdb.Is(err, ErrFormat) }

// IsDimension reports whether err is or wraps an ErrDimension error.
func IsDimension(err error) bool { return err != nil && crdb.Is(err, ErrDimension) }

// IsMissingData reports whether err is or wraps an ErrMissingData error.
func IsMissingData(err error) bool { return err != nil && crdb.Is(err, ErrMissingData) }

// IsIO reports whether err is or wraps an ErrIO error.
func IsIO(err error) bool { return err != nil && crdb.Is(err, ErrIO) }

// IsDomain reports whether err is or wraps an ErrDomain error.
func IsDomain(err error) bool { return err != nil && crdb.Is(err, ErrDomain) }

// Kind returns a short name for the kind of err, or "" when err carries none
// of the flowcore markers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsFormat(err):
		return "format"
	case IsDimension(err):
		return "dimension"
	case IsMissingData(err):
		return "missing_data"
	case IsIO(err):
		return "io"
	case IsDomain(err):
		return "domain"
	}
	return ""
}
