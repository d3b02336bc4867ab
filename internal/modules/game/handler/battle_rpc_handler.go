package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Fishbowl37/RPG-Server/internal/modules/game/service"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/validator"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// rpcTimeout 单次 RPC 处理时限
const rpcTimeout = 5 * time.Second

// BattleRPCHandler 战斗相关 RPC 处理器
// 提供给其他模块查询角色关卡进度
type BattleRPCHandler struct {
	issuanceService *service.StageIssuanceService
	validator       echo.Validator
}

// NewBattleRPCHandler 创建战斗 RPC Handler
func NewBattleRPCHandler(serviceContainer *service.ServiceContainer) *BattleRPCHandler {
	return &BattleRPCHandler{
		issuanceService: serviceContainer.StageIssuanceService,
		validator:       validator.New(),
	}
}

// ChapterProgressRPCRequest UserID 为空时不校验归属
type ChapterProgressRPCRequest struct {
	UserID      string `json:"user_id,omitempty"`
	CharacterID string `json:"character_id" validate:"required,max=64"`
}

// ChapterProgressRPCResponse 章节进度
type ChapterProgressRPCResponse struct {
	CharacterID string                  `json:"character_id"`
	Chapters    []service.ChapterStatus `json:"chapters"`
}

// ==================== RPC Methods ====================

// GetChapterProgress 查询角色各章节进度（JSON 编码）
func (h *BattleRPCHandler) GetChapterProgress(data []byte) ([]byte, error) {
	var req ChapterProgressRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, xerrors.NewValidationError("request", "invalid json payload")
	}
	if err := h.validator.Validate(&req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	chapters, err := h.issuanceService.ChapterProgress(ctx, req.UserID, req.CharacterID)
	if err != nil {
		return nil, err
	}

	return json.Marshal(&ChapterProgressRPCResponse{
		CharacterID: req.CharacterID,
		Chapters:    chapters,
	})
}
