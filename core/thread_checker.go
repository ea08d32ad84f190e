package core

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
)

// ErrContextViolation is returned (or panicked with, in strict mode) when
// runner-affine code is entered from a goroutine other than the bound one.
var ErrContextViolation = errors.New("task runner accessed from a non-bound execution context")

// ContextViolationError describes which goroutine broke affinity.
type ContextViolationError struct {
	Runner    string
	Op        string
	BoundID   uint64
	CurrentID uint64
}

func (e *ContextViolationError) Error() string {
	return fmt.Sprintf("%s: %s called on goroutine %d, runner bound to goroutine %d",
		e.Runner, e.Op, e.CurrentID, e.BoundID)
}

func (e *ContextViolationError) Unwrap() error {
	return ErrContextViolation
}

// ThreadChecker records the goroutine a runner is bound to.
// Go has no public goroutine identity, so the id is parsed from the
// "goroutine N [...]" header that runtime.Stack writes.
type ThreadChecker struct {
	bound atomic.Uint64 // 0 = unbound
}

// Bind binds the checker to the calling goroutine.
// It returns false if already bound to a different goroutine.
func (c *ThreadChecker) Bind() bool {
	id := currentGoroutineID()
	if c.bound.CompareAndSwap(0, id) {
		return true
	}
	return c.bound.Load() == id
}

// IsBound reports whether Bind has succeeded.
func (c *ThreadChecker) IsBound() bool {
	return c.bound.Load() != 0
}

// BoundID returns the bound goroutine id, or 0.
func (c *ThreadChecker) BoundID() uint64 {
	return c.bound.Load()
}

// IsCurrent reports whether the caller is the bound goroutine.
func (c *ThreadChecker) IsCurrent() bool {
	id := c.bound.Load()
	return id != 0 && id == currentGoroutineID()
}

var goroutinePrefix = []byte("goroutine ")

func currentGoroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("cannot parse goroutine id: %v", err))
	}
	return id
}
