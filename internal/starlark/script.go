package starlark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// DefaultFunction is the name of the function a transform script must define.
const DefaultFunction = "transform"

// LoadError reports a script that could not be read or executed.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// EvalError represents a failure raised while a script processed a module.
type EvalError struct {
	Script  string
	Module  string
	Message string
	// Backtrace is the Starlark call stack, when available.
	Backtrace string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: error transforming %s: %s", e.Script, e.Module, e.Message)
}

// Script is a loaded transform script. Its globals are frozen after
// loading, so Call may run concurrently on separate threads.
type Script struct {
	path     string
	source   []byte
	function starlark.Callable
	pool     *threadPool
	logger   *slog.Logger
}

// LoadScript executes the script at path and looks up the named function.
func LoadScript(path, function string, logger *slog.Logger) (*Script, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if function == "" {
		function = DefaultFunction
	}

	content, err := os.ReadFile(path) //nolint:gosec // G304: script path comes from project configuration
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	thread := &starlark.Thread{
		Name: "load:" + path,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug("starlark print", "script", path, "msg", msg)
		},
	}

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, path, content, nil)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}
	globals.Freeze()

	fn, ok := globals[function].(starlark.Callable)
	if !ok {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("function %q is not defined", function)}
	}

	return &Script{
		path:     path,
		source:   content,
		function: fn,
		pool:     newThreadPool(0),
		logger:   logger,
	}, nil
}

// Path returns the script path.
func (s *Script) Path() string { return s.path }

// Source returns the script content, used to key cached transform results.
func (s *Script) Source() []byte { return s.source }

// Call invokes the transform function as fn(source, path, options) and
// returns the result converted to Go values.
func (s *Script) Call(ctx context.Context, source, modulePath string, options map[string]any) (any, error) {
	opts, err := GoToStarlark(options)
	if err != nil {
		return nil, fmt.Errorf("failed to convert options: %w", err)
	}
	if options == nil {
		opts = starlark.NewDict(0)
	}

	args := starlark.Tuple{starlark.String(source), starlark.String(modulePath), opts}
	logPrint := func(msg string) {
		s.logger.Debug("starlark print", "script", s.path, "module", modulePath, "msg", msg)
	}
	result, callErr := s.pool.run(ctx, modulePath, logPrint, func(thread *starlark.Thread) (starlark.Value, error) {
		return starlark.Call(thread, s.function, args, nil)
	})

	if callErr != nil {
		return nil, s.evalError(modulePath, callErr)
	}

	return ToGo(result)
}

func (s *Script) evalError(modulePath string, err error) error {
	evalErr := &EvalError{Script: s.path, Module: modulePath, Message: err.Error()}
	var serr *starlark.EvalError
	if errors.As(err, &serr) {
		evalErr.Message = strings.TrimPrefix(serr.Msg, "fail: ")
		evalErr.Backtrace = serr.Backtrace()
	}
	return evalErr
}
