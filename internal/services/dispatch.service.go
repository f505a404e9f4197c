package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

var (
	// ErrUnknownCommand is returned when no handler is registered under a name
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidArguments wraps argument decoding and validation failures
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Invocation is a single command call coming from a view
type Invocation struct {
	View string
	Args json.RawMessage
}

// CommandFunc handles one command. The returned value is serialised as JSON
// for the caller; a returned error reaches the caller as its message only.
type CommandFunc func(ctx context.Context, inv Invocation) (interface{}, error)

// Dispatcher is the table of commands the front end may invoke
type Dispatcher struct {
	commands map[string]CommandFunc
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		commands: make(map[string]CommandFunc),
		logger:   logger.Named("dispatch"),
	}
}

// Register adds fn under name. Registering a name twice is a programming error.
func (d *Dispatcher) Register(name string, fn CommandFunc) {
	if _, exists := d.commands[name]; exists {
		panic(fmt.Sprintf("command %q registered twice", name))
	}
	d.commands[name] = fn
}

// Names lists the registered commands, sorted
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the command called name on behalf of inv.View
func (d *Dispatcher) Invoke(ctx context.Context, name string, inv Invocation) (interface{}, error) {
	fn, ok := d.commands[name]
	if !ok {
		d.logger.Warn("unknown command", zap.String("command", name), zap.String("view", inv.View))
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	start := time.Now()
	result, err := fn(ctx, inv)
	fields := []zap.Field{
		zap.String("command", name),
		zap.String("view", inv.View),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		d.logger.Info("command failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	d.logger.Debug("command called", fields...)
	return result, nil
}

// DecodeArgs unmarshals raw into dst and runs gin's struct validation on it.
// Empty args decode as an empty object.
func DecodeArgs(raw json.RawMessage, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
