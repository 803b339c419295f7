package service

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrProtectedRoom        = errors.New("room is protected and cannot be deleted")
	ErrInvalidModule        = errors.New("module number must be between 1 and 6")
	ErrInvalidRoomCode      = errors.New("invalid room code")
	ErrNotRoomMember        = errors.New("user is not a member of this room")
	ErrJoinConflict         = errors.New("user joined another room concurrently, retry")
	ErrInvalidRoomName      = errors.New("room name required")
	ErrRoomCodeExhausted    = errors.New("failed to generate unique room code")
	ErrInvalidComputeParams = errors.New("invalid compute parameters")
	ErrJobNotFound          = errors.New("compute job not found")
	ErrAsyncUnavailable     = errors.New("async compute jobs are not configured")
	ErrInternalServer       = errors.New("internal server error")
)

// mapRepoError 将仓库层的非业务错误包装为 ErrInternalServer，同时保留原始错误链。
func mapRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInternalServer, err)
}
