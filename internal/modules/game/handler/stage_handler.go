package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/middleware"
	"github.com/Fishbowl37/RPG-Server/internal/modules/game/service"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/ctxkey"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/response"
)

// StageHandler handles stage HTTP requests
type StageHandler struct {
	issuanceService   *service.StageIssuanceService
	completionService *service.StageCompletionService
	respWriter        response.Writer
}

// NewStageHandler creates a new stage handler
func NewStageHandler(serviceContainer *service.ServiceContainer, respWriter response.Writer) *StageHandler {
	return &StageHandler{
		issuanceService:   serviceContainer.StageIssuanceService,
		completionService: serviceContainer.StageCompletionService,
		respWriter:        respWriter,
	}
}

// RegisterRoutes 挂载关卡路由；completeMW 只作用于结算提交
func (h *StageHandler) RegisterRoutes(g *echo.Group, completeMW ...echo.MiddlewareFunc) {
	characters := g.Group("/characters/:character_id")
	characters.GET("/stages/:chapter/:stage/config", h.GetStageConfig)
	characters.POST("/stages/complete", h.CompleteStage, completeMW...)
	characters.GET("/chapters", h.GetChapters)
}

// ==================== HTTP Request/Response Models ====================

// StageConfigRequest 关卡参数请求（路径参数）
type StageConfigRequest struct {
	CharacterID string `param:"character_id" validate:"required,max=64"`
	Chapter     int    `param:"chapter"`
	Stage       int    `param:"stage"`
}

// BattleLogPayload 客户端战斗日志
type BattleLogPayload struct {
	Stats    battle.BattleStats `json:"stats"`
	MobKills []battle.MobKill   `json:"mob_kills" validate:"max=64,dive"`
}

// CompleteStageRequest 关卡完成请求
type CompleteStageRequest struct {
	CharacterID  string           `param:"character_id" json:"-" validate:"required,max=64"`
	SessionToken string           `json:"session_token" validate:"required,max=128"`
	Chapter      int              `json:"chapter"`
	Stage        int              `json:"stage"`
	BattleLog    BattleLogPayload `json:"battle_log"`
}

// CharacterPathRequest 仅含角色 ID 的路径参数
type CharacterPathRequest struct {
	CharacterID string `param:"character_id" validate:"required,max=64"`
}

// CompleteStageResponse 结算成功响应
type CompleteStageResponse struct {
	Chapter   int                      `json:"chapter"`
	Stage     int                      `json:"stage"`
	Rewards   battle.RewardBundle      `json:"rewards"`
	Character *battle.CharacterSummary `json:"character"`
}

// ChapterListResponse 章节进度响应
type ChapterListResponse struct {
	CharacterID string                  `json:"character_id"`
	Chapters    []service.ChapterStatus `json:"chapters"`
}

// ==================== HTTP Handlers ====================

// GetStageConfig handles stage issuance
// @Summary 获取关卡参数
// @Description 生成关卡怪物与奖励并登记一次性战斗会话
// @Tags 关卡
// @Produce json
// @Param character_id path string true "角色ID"
// @Param chapter path int true "章节"
// @Param stage path int true "关卡"
// @Success 200 {object} response.Response{data=service.StageConfig} "获取成功"
// @Failure 400 {object} response.Response "关卡无效或未解锁"
// @Failure 404 {object} response.Response "角色不存在"
// @Router /game/characters/{character_id}/stages/{chapter}/{stage}/config [get]
func (h *StageHandler) GetStageConfig(c echo.Context) error {
	var req StageConfigRequest
	if err := c.Bind(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	ctx := ctxkey.WithValue(c.Request().Context(), ctxkey.CharacterID, req.CharacterID)
	cfg, err := h.issuanceService.IssueStage(ctx, battle.StageRequest{
		UserID:      userID,
		CharacterID: req.CharacterID,
		Chapter:     req.Chapter,
		Stage:       req.Stage,
	})
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	return response.EchoOK(c, h.respWriter, cfg)
}

// CompleteStage handles battle result submission
// @Summary 提交战斗结果
// @Description 一次性领取战斗会话，校验战斗日志并结算奖励
// @Tags 关卡
// @Accept json
// @Produce json
// @Param character_id path string true "角色ID"
// @Param request body CompleteStageRequest true "战斗结果"
// @Success 200 {object} response.Response{data=CompleteStageResponse} "结算成功"
// @Failure 404 {object} response.Response "会话不存在"
// @Failure 409 {object} response.Response "会话已结算"
// @Failure 410 {object} response.Response "会话已过期"
// @Failure 422 {object} response.Response "战斗结果无效"
// @Router /game/characters/{character_id}/stages/complete [post]
func (h *StageHandler) CompleteStage(c echo.Context) error {
	var req CompleteStageRequest
	if err := c.Bind(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	ctx := ctxkey.WithValue(c.Request().Context(), ctxkey.CharacterID, req.CharacterID)
	result, err := h.completionService.CompleteStage(ctx, service.CompletionRequest{
		UserID:      userID,
		CharacterID: req.CharacterID,
		Log: battle.BattleLog{
			SessionToken: req.SessionToken,
			Chapter:      req.Chapter,
			Stage:        req.Stage,
			Stats:        req.BattleLog.Stats,
			MobKills:     req.BattleLog.MobKills,
		},
	})
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	if !result.Accepted {
		return response.EchoBattleRejected(c, h.respWriter)
	}

	return response.EchoOK(c, h.respWriter, &CompleteStageResponse{
		Chapter:   result.Stage.Chapter,
		Stage:     result.Stage.Stage,
		Rewards:   result.Rewards,
		Character: result.Character,
	})
}

// GetChapters handles chapter progress
// @Summary 章节进度
// @Tags 关卡
// @Produce json
// @Param character_id path string true "角色ID"
// @Success 200 {object} response.Response{data=ChapterListResponse} "获取成功"
// @Router /game/characters/{character_id}/chapters [get]
func (h *StageHandler) GetChapters(c echo.Context) error {
	var req CharacterPathRequest
	if err := c.Bind(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	chapters, err := h.issuanceService.ChapterProgress(c.Request().Context(), userID, req.CharacterID)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	return response.EchoOK(c, h.respWriter, &ChapterListResponse{
		CharacterID: req.CharacterID,
		Chapters:    chapters,
	})
}
