package apprunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
)

// Func is the signature of an in-process app: it receives resolved
// positional and keyword argument bytes plus the environment snapshot, and
// returns a result payload or an error.
type Func func(args [][]byte, kwargs map[string][]byte, environ map[string]string) ([]byte, error)

// panicErrno is returned for a recovered panic, matching the source
// system's `getattr(exc, 'errno', 42)` fallback for exceptions with no
// errno of their own.
const panicErrno = 42

// FunctionRunner executes a registered Go function in-process. Runs are
// serialized with a mutex: process-wide stdout/stderr redirection and
// environment mutation are inherently unsafe to interleave, so the
// function-runner may only be used from a single-threaded worker loop,
// never called concurrently from the same process.
type FunctionRunner struct {
	mu sync.Mutex
	fn Func
}

// NewFunctionRunner wraps fn as a Runner.
func NewFunctionRunner(fn Func) *FunctionRunner {
	return &FunctionRunner{fn: fn}
}

// Run redirects the process's stdout/stderr for the duration of the call,
// temporarily overlays environ on the process environment, and recovers
// any panic into (panicErrno, stack trace in stderr).
func (r *FunctionRunner) Run(ctx context.Context, args [][]byte, kwargs map[string][]byte, environ map[string]string) (errno int, result, stdout, stderr []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	restoreEnv := overlayEnviron(environ)
	defer restoreEnv()

	outR, outW, perr := os.Pipe()
	if perr != nil {
		return 1, nil, nil, nil, perr
	}
	errR, errW, perr := os.Pipe()
	if perr != nil {
		outR.Close()
		outW.Close()
		return 1, nil, nil, nil, perr
	}

	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = outW, errW

	var outBuf, errBuf bytes.Buffer
	var copyWg sync.WaitGroup
	copyWg.Add(2)
	go func() { defer copyWg.Done(); io.Copy(&outBuf, outR) }()
	go func() { defer copyWg.Done(); io.Copy(&errBuf, errR) }()

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				errno = panicErrno
				fmt.Fprintf(errW, "panic: %v\n%s", rec, debug.Stack())
			}
		}()
		if ctx.Err() != nil {
			errno = 1
			fmt.Fprintf(errW, "context already done: %v", ctx.Err())
			return
		}
		res, runErr := r.fn(args, kwargs, environ)
		if runErr != nil {
			errno = 1
			fmt.Fprintf(errW, "%v", runErr)
			return
		}
		result = res
	}()

	os.Stdout, os.Stderr = origOut, origErr
	outW.Close()
	errW.Close()
	copyWg.Wait()
	outR.Close()
	errR.Close()

	return errno, result, outBuf.Bytes(), errBuf.Bytes(), nil
}

func overlayEnviron(environ map[string]string) func() {
	if len(environ) == 0 {
		return func() {}
	}
	var saved []struct{ key, val string; had bool }
	for k, v := range environ {
		old, had := os.LookupEnv(k)
		saved = append(saved, struct {
			key, val string
			had      bool
		}{k, old, had})
		os.Setenv(k, v)
	}
	return func() {
		for _, s := range saved {
			if s.had {
				os.Setenv(s.key, s.val)
			} else {
				os.Unsetenv(s.key)
			}
		}
	}
}
