package models

import "errors"

// ErrorKind is the stable, machine readable classification of a pipeline failure.
// the values are persisted and returned by the API, so they must not be renamed.
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindUnsupportedVersion ErrorKind = "unsupported_version"
	ErrorKindProcessSpawn       ErrorKind = "process_spawn"
	ErrorKindProcessExit        ErrorKind = "process_exit"
	ErrorKindTimeout            ErrorKind = "timeout"
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindFilesystem         ErrorKind = "filesystem"
	ErrorKindCanceled           ErrorKind = "canceled"

	// ErrorKindInternal is only used for errors that carry no kind at all
	ErrorKindInternal ErrorKind = "internal"
)

// kinded is implemented by every typed error of the pipeline.
type kinded interface {
	Kind() ErrorKind
}

// KindOf walks the wrap chain of err and returns the kind of the first typed error.
// nil maps to ErrorKindNone, an untyped error maps to ErrorKindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var typedError kinded
	if errors.As(err, &typedError) {
		return typedError.Kind()
	}
	return ErrorKindInternal
}
