// Package transport — общая часть транспортов подписчиков: разбор и
// исполнение входящих команд.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xela07ax/yardwatch/internal/domain"
)

const (
	CommandSetStatus   = "set_status"
	CommandClearStatus = "clear_status"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidCommand = errors.New("invalid command")
)

// Command — ручная правка статуса от подписчика.
type Command struct {
	Type    string `json:"type"`
	TrackID int64  `json:"track_id"`
	Status  string `json:"status,omitempty"`
}

// wireCommand отличает отсутствующий track_id от нулевого.
type wireCommand struct {
	Type    string `json:"type"`
	TrackID *int64 `json:"track_id"`
	Status  string `json:"status"`
}

// OverrideApplier — то, что умеет применять ручные статусы (engine.OverrideManager).
type OverrideApplier interface {
	Apply(ctx context.Context, trackID int64, status domain.Status, by string) error
	Release(ctx context.Context, trackID int64) error
}

// ParseCommand понимает JSON {"type":"set_status",...} и текстовую форму
// "status 7 manutencao" / "clear 7".
func ParseCommand(raw []byte) (Command, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Command{}, fmt.Errorf("%w: empty message", ErrInvalidCommand)
	}

	var cmd Command
	if raw[0] == '{' {
		var w wireCommand
		if err := json.Unmarshal(raw, &w); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		cmd.Type, cmd.Status = w.Type, w.Status
		if w.TrackID == nil && (w.Type == CommandSetStatus || w.Type == CommandClearStatus) {
			return Command{}, fmt.Errorf("%w: track_id is required", ErrInvalidCommand)
		}
		if w.TrackID != nil {
			cmd.TrackID = *w.TrackID
		}
	} else {
		fields := strings.Fields(string(raw))
		switch strings.ToLower(fields[0]) {
		case "status", "set":
			if len(fields) != 3 {
				return Command{}, fmt.Errorf("%w: want \"status <id> <status>\"", ErrInvalidCommand)
			}
			cmd.Type, cmd.Status = CommandSetStatus, fields[2]
		case "clear":
			if len(fields) != 2 {
				return Command{}, fmt.Errorf("%w: want \"clear <id>\"", ErrInvalidCommand)
			}
			cmd.Type = CommandClearStatus
		default:
			return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: track id %q", ErrInvalidCommand, fields[1])
		}
		cmd.TrackID = id
	}

	switch cmd.Type {
	case CommandSetStatus:
		st, err := domain.ParseOverride(cmd.Status)
		if err != nil {
			return Command{}, err
		}
		cmd.Status = string(st)
	case CommandClearStatus:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return cmd, nil
}

// Execute применяет разобранную команду; by попадает в Override.UpdatedBy.
func Execute(ctx context.Context, a OverrideApplier, cmd Command, by string) error {
	switch cmd.Type {
	case CommandSetStatus:
		return a.Apply(ctx, cmd.TrackID, domain.Status(cmd.Status), by)
	case CommandClearStatus:
		return a.Release(ctx, cmd.TrackID)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}
