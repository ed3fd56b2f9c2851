package service

import "errors"

// カスタムエラー定義
// どのエラーも対象の接続にのみ影響し、サーバープロセスを止めることはありません
var (
	ErrRoomHasPublisher   = errors.New("room already has a publisher")
	ErrAlreadyJoined      = errors.New("connection already joined a room")
	ErrInvalidRole        = errors.New("invalid role")
	ErrConnectionNotFound = errors.New("connection not found")
)
