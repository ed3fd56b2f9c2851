package handlers

import (
	"fmt"

	"github.com/StreamCast/StreamCast_Live/backend/signal-server/internal/models"
)

// validateRoomId はルームIDのバリデーションを行います
func validateRoomId(roomId string) error {
	if normalizeID(roomId) == "" {
		return fmt.Errorf("roomId required")
	}
	return nil
}

// validateRole は役割のバリデーションを行います
func validateRole(role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("role must be publisher or viewer")
	}
	return nil
}
