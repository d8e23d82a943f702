package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"study-planner/internal/apperr"
	"study-planner/internal/chat"
	"study-planner/internal/coordinator"
	"study-planner/internal/document"
	"study-planner/internal/model"
	"study-planner/internal/planner"
	"study-planner/internal/service"
)

// maxDocumentBytes caps uploaded documents.
const maxDocumentBytes = 1 << 20

func ownerParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("owner"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.Validation("owner %q is not a positive id", c.Param("owner"))
	}
	return uint(id), nil
}

type extractRequest struct {
	Text string `json:"text"`
}

func (s *Server) extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.log, apperr.Validation("invalid request: %v", err))
		return
	}
	res, err := s.coord.Extract(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// processDocument accepts either {"text": ...} as JSON or a raw plain,
// markdown or HTML body.
func (s *Server) processDocument(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}

	up, err := documentUpload(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}

	res, err := s.coord.ProcessDocument(c.Request.Context(), owner, up)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// documentUpload reads a JSON {text, filename} body or a raw document body
// named by the X-Filename header.
func documentUpload(c *gin.Context) (coordinator.Upload, error) {
	contentType := c.ContentType()
	if contentType == "application/json" {
		var req documentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return coordinator.Upload{}, apperr.Validation("invalid request: %v", err)
		}
		return coordinator.Upload{Filename: req.Filename, ContentType: "text/plain", Size: len(req.Text), Text: req.Text}, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDocumentBytes+1))
	if err != nil {
		return coordinator.Upload{}, apperr.Validation("read body: %v", err)
	}
	if len(body) > maxDocumentBytes {
		return coordinator.Upload{}, apperr.Validation("document exceeds %d bytes", maxDocumentBytes)
	}
	text, err := document.ToText(c.GetHeader("Content-Type"), body)
	if err != nil {
		return coordinator.Upload{}, err
	}
	return coordinator.Upload{Filename: c.GetHeader("X-Filename"), ContentType: contentType, Size: len(body), Text: text}, nil
}

type documentRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// documentView is a recorded upload with a preview of its text.
type documentView struct {
	model.Document
	ExtractedText string `json:"extracted_text"`
}

func (s *Server) listDocuments(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, s.log, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	docs, err := s.coord.Documents(c.Request.Context(), owner, limit)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	out := make([]documentView, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentView{Document: d, ExtractedText: d.Preview()})
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

func (s *Server) getDocument(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(c, s.log, apperr.Validation("invalid document id %q", c.Param("id")))
		return
	}
	doc, err := s.coord.Document(c.Request.Context(), owner, uint(id))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, documentView{Document: *doc, ExtractedText: doc.ExtractedText})
}

type planRequest struct {
	Date string `json:"date"`
	Mode string `json:"mode"`
}

func (s *Server) planDay(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	var req planRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, s.log, apperr.Validation("invalid request: %v", err))
			return
		}
	}
	date, err := s.coord.ParseDate(req.Date)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	plan, err := s.coord.PlanDay(c.Request.Context(), owner, date, planner.ParseMode(req.Mode))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) getPlan(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	date, err := s.coord.ParseDate(c.Param("date"))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	plan, err := s.coord.GetPlan(c.Request.Context(), owner, date)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type chatRequest struct {
	Message string         `json:"message" binding:"required"`
	History []chat.Message `json:"history"`
}

func (s *Server) chat(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.log, apperr.Validation("invalid request: %v", err))
		return
	}
	res, err := s.coord.HandleChat(c.Request.Context(), owner, req.Message, req.History)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) searchContext(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		writeError(c, s.log, apperr.Validation("query parameter q is required"))
		return
	}
	k := 0
	if raw := c.Query("k"); raw != "" {
		if k, err = strconv.Atoi(raw); err != nil || k < 0 {
			writeError(c, s.log, apperr.Validation("k must be a non-negative integer"))
			return
		}
	}
	hits, err := s.coord.Query(c.Request.Context(), owner, q, k)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

func (s *Server) listTasks(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	var tasks []model.Task
	if status := c.Query("status"); status != "" {
		tasks, err = s.tasks.ListByStatus(c.Request.Context(), owner, model.TaskStatus(status))
	} else {
		tasks, err = s.tasks.Pending(c.Request.Context(), owner)
	}
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

type createTaskRequest struct {
	Title             string `json:"title" binding:"required"`
	Description       string `json:"description"`
	Course            string `json:"course"`
	Deadline          string `json:"deadline" binding:"required"`
	EstimatedDuration int    `json:"estimated_duration"`
	Priority          string `json:"priority"`
}

func (s *Server) createTask(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.log, apperr.Validation("invalid request: %v", err))
		return
	}
	deadline, err := s.coord.ParseDeadline(req.Deadline)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	task, err := s.tasks.Create(c.Request.Context(), owner, service.TaskInput{
		Title:             req.Title,
		Description:       req.Description,
		Course:            req.Course,
		Deadline:          deadline,
		EstimatedDuration: req.EstimatedDuration,
		Priority:          model.ParsePriority(req.Priority),
		Source:            model.SourceManual,
	})
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) updateTaskStatus(c *gin.Context) {
	owner, err := ownerParam(c)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || taskID == 0 {
		writeError(c, s.log, apperr.Validation("task id %q is not a positive id", c.Param("id")))
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.log, apperr.Validation("invalid request: %v", err))
		return
	}
	task, err := s.tasks.UpdateStatus(c.Request.Context(), owner, uint(taskID), model.TaskStatus(req.Status))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
