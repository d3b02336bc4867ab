package interfaces

import "errors"

var (
	// ErrCharacterNotFound 角色不存在
	ErrCharacterNotFound = errors.New("character not found")
	// ErrCharacterExists 角色 ID 冲突
	ErrCharacterExists = errors.New("character already exists")
)
