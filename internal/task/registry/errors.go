package registry

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for empty ids, nil callbacks or configs, and invalid configs.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotRegistered is returned when refreshing an unknown task id.
	ErrNotRegistered = errors.New("task not registered")
	// ErrConfiguration matches every *ConfigError.
	ErrConfiguration = errors.New("refresh configuration error")
)

// ConfigError reports a settings-resolution failure for one task.
type ConfigError struct {
	TaskID string
	// Path is the expected settings section, e.g. "BackgroundRefresh:Catalog:Load".
	Path string
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	where := e.Path
	if where == "" {
		where = fmt.Sprintf("task %q", e.TaskID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", where, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", where, e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// IsCancellation reports whether err ends an execution as Cancelled rather
// than Failed: a context.Canceled error, or any error once ctx is done.
func IsCancellation(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return ctx != nil && ctx.Err() != nil
}
