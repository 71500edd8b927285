package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/sukryu/GoKeep/pkg/domain"
	"github.com/sukryu/GoKeep/pkg/utils"
)

// CommandHandler handles execution of commands against the database.
type CommandHandler struct {
	db     *domain.Database
	logger utils.Logger
	wg     sync.WaitGroup // For async command execution tracking
}

// NewCommandHandler creates a new CommandHandler instance.
func NewCommandHandler(db *domain.Database, logger utils.Logger) *CommandHandler {
	return &CommandHandler{
		db:     db,
		logger: logger,
	}
}

// Command defines the interface for all commands.
type Command interface {
	Execute(ctx context.Context, handler *CommandHandler) error
}

// PutCommand represents a command to insert or update a key-value pair.
type PutCommand struct {
	Key   string
	Value string
}

// Execute executes the PutCommand.
func (c *PutCommand) Execute(ctx context.Context, handler *CommandHandler) error {
	if err := handler.db.Put(c.Key, c.Value); err != nil {
		handler.logger.Error(fmt.Sprintf("Failed to put key %s: %v", c.Key, err))
		return err
	}
	return nil
}

// DeleteCommand represents a command to delete a key.
type DeleteCommand struct {
	Key string
}

// Execute executes the DeleteCommand.
func (c *DeleteCommand) Execute(ctx context.Context, handler *CommandHandler) error {
	if err := handler.db.Delete(c.Key); err != nil {
		handler.logger.Error(fmt.Sprintf("Failed to delete key %s: %v", c.Key, err))
		return err
	}
	return nil
}

// CompactCommand represents a command to merge the engine's segments.
type CompactCommand struct{}

// Execute executes the CompactCommand.
func (c *CompactCommand) Execute(ctx context.Context, handler *CommandHandler) error {
	if err := handler.db.ForceCompaction(); err != nil {
		handler.logger.Error(fmt.Sprintf("Failed to compact: %v", err))
		return err
	}
	return nil
}

// ExecuteCommand executes a command synchronously.
func (h *CommandHandler) ExecuteCommand(ctx context.Context, cmd Command) error {
	return cmd.Execute(ctx, h)
}

// ExecuteCommandAsync executes a command asynchronously.
func (h *CommandHandler) ExecuteCommandAsync(ctx context.Context, cmd Command) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := cmd.Execute(ctx, h); err != nil {
			h.logger.Error(fmt.Sprintf("Async command execution failed: %v", err))
		}
	}()
}

// DB returns the underlying database.
func (h *CommandHandler) DB() *domain.Database {
	return h.db
}

// Wait waits for all asynchronous commands to complete.
func (h *CommandHandler) Wait() {
	h.wg.Wait()
}
