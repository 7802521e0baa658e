package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/langconfig/backend/internal/model"
	"github.com/langconfig/backend/internal/pkg/skills"
	"k8s.io/klog/v2"
)

type SkillHandler struct {
	manager *skills.Manager
}

func NewSkillHandler(manager *skills.Manager) *SkillHandler {
	return &SkillHandler{manager: manager}
}

// List 列出技能，支持 ?source= ?q= ?tags=a,b&match_all=true 过滤
func (h *SkillHandler) List(c *gin.Context) {
	registry := h.manager.Registry()

	if q := c.Query("q"); q != "" {
		c.JSON(http.StatusOK, registry.Search(q))
		return
	}

	if tags := c.Query("tags"); tags != "" {
		matchAll := c.Query("match_all") == "true"
		c.JSON(http.StatusOK, registry.FindByTags(splitCSV(tags), matchAll))
		return
	}

	if source := c.Query("source"); source != "" {
		sourceType := model.SkillSourceType(source)
		switch sourceType {
		case model.SourceBuiltin, model.SourcePersonal, model.SourceProject:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source type"})
			return
		}
		c.JSON(http.StatusOK, registry.FindBySource(sourceType))
		return
	}

	c.JSON(http.StatusOK, registry.ListAll())
}

func (h *SkillHandler) Get(c *gin.Context) {
	skill := h.manager.Registry().GetSkill(c.Param("id"))
	if skill == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "skill not found"})
		return
	}
	c.JSON(http.StatusOK, skill)
}

type CreateSkillRequest struct {
	SkillID      string   `json:"skill_id" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description" binding:"required"`
	Tags         []string `json:"tags"`
	Triggers     []string `json:"triggers"`
	Instructions string   `json:"instructions"`
}

func (h *SkillHandler) Create(c *gin.Context) {
	var req CreateSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.manager.Registry().GetSkill(req.SkillID) != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "skill already exists"})
		return
	}

	skill, err := h.manager.Registry().CreateSkill(c.Request.Context(),
		req.SkillID, req.Name, req.Description, req.Tags, req.Triggers, req.Instructions)
	if err != nil {
		if errors.Is(err, skills.ErrInvalidSkillID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, skill)
}

type UpdateSkillRequest struct {
	Name         *string  `json:"name"`
	Description  *string  `json:"description"`
	Triggers     []string `json:"triggers"`
	Instructions *string  `json:"instructions"`
}

func (h *SkillHandler) Update(c *gin.Context) {
	skillID := c.Param("id")
	registry := h.manager.Registry()

	existing := registry.GetSkill(skillID)
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "skill not found"})
		return
	}

	var req UpdateSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.Triggers != nil {
		updated.Triggers = req.Triggers
	}
	if req.Instructions != nil {
		updated.Instructions = *req.Instructions
	}
	updated.UpdatedAt = time.Now()

	if !registry.UpdateSkill(c.Request.Context(), &updated) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	c.JSON(http.StatusOK, &updated)
}

func (h *SkillHandler) Delete(c *gin.Context) {
	skillID := c.Param("id")
	if h.manager.Registry().GetSkill(skillID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "skill not found"})
		return
	}

	if !h.manager.Registry().DeleteSkill(c.Request.Context(), skillID) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Reload 从磁盘重载单个技能
func (h *SkillHandler) Reload(c *gin.Context) {
	skillID := c.Param("id")
	if !h.manager.Registry().ReloadSkill(c.Request.Context(), skillID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "skill not found or reload failed"})
		return
	}
	c.JSON(http.StatusOK, h.manager.Registry().GetSkill(skillID))
}

// ReloadAll 清空并重新扫描所有技能目录
func (h *SkillHandler) ReloadAll(c *gin.Context) {
	count, err := h.manager.Registry().ReloadAll(c.Request.Context(), nil)
	if err != nil {
		klog.Errorf("ReloadAll failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reloaded", "count": count})
}

type MatchRequest struct {
	Query       string   `json:"query"`
	FilePath    string   `json:"file_path"`
	FileContent string   `json:"file_content"`
	ProjectType string   `json:"project_type"`
	Tags        []string `json:"tags"`
	MaxResults  int      `json:"max_results"`
	MinScore    *float64 `json:"min_score"`
	Strategies  []string `json:"strategies"`
	// Record 为 true 时把首个命中记为一次自动调用
	Record  bool   `json:"record"`
	AgentID string `json:"agent_id"`
}

type MatchResponse struct {
	SkillID string  `json:"skill_id"`
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

// Match 根据上下文匹配相关技能
func (h *SkillHandler) Match(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mc := skills.MatchContext{
		Query:       req.Query,
		FilePath:    req.FilePath,
		FileContent: req.FileContent,
		ProjectType: req.ProjectType,
		Tags:        req.Tags,
	}
	opts := skills.MatchOptions{MaxResults: req.MaxResults}
	if req.MinScore != nil {
		opts.MinScore = *req.MinScore
	}
	for _, s := range req.Strategies {
		opts.Strategies = append(opts.Strategies, skills.Strategy(s))
	}

	matches := h.manager.Matcher().FindRelevantSkills(c.Request.Context(), mc, opts)

	if req.Record && len(matches) > 0 {
		top := matches[0]
		score := top.Score
		err := h.manager.Registry().RecordExecution(c.Request.Context(), skills.ExecutionRecord{
			SkillID:        top.Skill.SkillID,
			InvocationType: model.InvocationAutomatic,
			Status:         model.ExecutionSuccess,
			MatchScore:     &score,
			MatchReason:    top.Reason,
			Context:        mc.Map(),
			AgentID:        req.AgentID,
		})
		if err != nil {
			klog.Errorf("record automatic invocation failed: %v", err)
		}
	}

	result := make([]MatchResponse, 0, len(matches))
	for _, m := range matches {
		result = append(result, MatchResponse{
			SkillID: m.Skill.SkillID,
			Name:    m.Skill.Name,
			Score:   m.Score,
			Reason:  m.Reason,
		})
	}
	c.JSON(http.StatusOK, result)
}

// ListExecutions 查询技能的执行历史
func (h *SkillHandler) ListExecutions(c *gin.Context) {
	skillID := c.Param("id")
	if h.manager.Registry().GetSkill(skillID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "skill not found"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	executions, err := h.manager.Registry().ListExecutions(c.Request.Context(), skillID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, executions)
}

type RecordExecutionRequest struct {
	InvocationType  string            `json:"invocation_type"`
	Status          string            `json:"status" binding:"required"`
	ExecutionTimeMs *int              `json:"execution_time_ms"`
	ErrorMessage    string            `json:"error_message"`
	MatchScore      *float64          `json:"match_score"`
	MatchReason     string            `json:"match_reason"`
	Context         map[string]string `json:"context"`
	AgentID         string            `json:"agent_id"`
	WorkflowID      *uint             `json:"workflow_id"`
	TaskID          *uint             `json:"task_id"`
}

// RecordExecution 记录一次技能执行
func (h *SkillHandler) RecordExecution(c *gin.Context) {
	skillID := c.Param("id")

	var req RecordExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Status {
	case model.ExecutionSuccess, model.ExecutionFailed, model.ExecutionPartial:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	invocationType := model.SkillInvocationType(req.InvocationType)
	if req.InvocationType == "" {
		invocationType = model.InvocationExplicit
	}

	ctx := context.Background()
	err := h.manager.Registry().RecordExecution(ctx, skills.ExecutionRecord{
		SkillID:         skillID,
		InvocationType:  invocationType,
		Status:          req.Status,
		ExecutionTimeMs: req.ExecutionTimeMs,
		ErrorMessage:    req.ErrorMessage,
		MatchScore:      req.MatchScore,
		MatchReason:     req.MatchReason,
		Context:         req.Context,
		AgentID:         req.AgentID,
		WorkflowID:      req.WorkflowID,
		TaskID:          req.TaskID,
	})
	if err != nil {
		klog.Errorf("RecordExecution failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "recorded"})
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
