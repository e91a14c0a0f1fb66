package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/sofatutor/imagegen-proxy/internal/catalog"
	"github.com/sofatutor/imagegen-proxy/internal/history"
	"github.com/sofatutor/imagegen-proxy/internal/logging"
	"github.com/sofatutor/imagegen-proxy/internal/upstream"
	"go.uber.org/zap"
)

const ownedBy = "imagegen-proxy"

// chatRequest is the subset of an OpenAI chat completion request this proxy
// reads, plus the image-specific extensions.
type chatRequest struct {
	Model    string                         `json:"model"`
	Messages []openai.ChatCompletionMessage `json:"messages"`
	N        int                            `json:"n"`
	Style    string                         `json:"style"`
	Size     string                         `json:"size"`
	Stream   bool                           `json:"stream"`
	IsWebUI  bool                           `json:"is_web_ui"`
}

// imageRequest is an OpenAI image generation request plus style.
type imageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	N      int    `json:"n"`
	Style  string `json:"style"`
	Size   string `json:"size"`
}

// promptFromMessage extracts the text of a chat message. Image parts are ignored.
func promptFromMessage(m openai.ChatCompletionMessage) string {
	if len(m.MultiContent) == 0 {
		return m.Content
	}
	parts := make([]string, 0, len(m.MultiContent))
	for _, p := range m.MultiContent {
		if p.Type == openai.ChatMessagePartTypeText {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, " ")
}

// generate runs one generation and records it, successful or not.
func (s *Server) generate(ctx context.Context, req upstream.GenerationRequest, trace *logging.RequestLog) (*upstream.Result, error) {
	if req.Model == "" {
		req.Model = s.catalog.DefaultModel()
	}
	req.Outputs = catalog.ClampOutputs(req.Outputs)
	req.AspectRatio = catalog.NormalizeAspectRatio(req.AspectRatio)

	res, err := s.generator.Generate(ctx, req, trace)

	rec := history.Record{
		Prompt:      req.Prompt,
		Model:       req.Model,
		Style:       req.Style,
		AspectRatio: req.AspectRatio,
		Success:     err == nil,
	}
	if err != nil {
		rec.Error = generationErrorMessage(err)
		trace.Add("Fatal Error", rec.Error)
	} else {
		rec.ImageURLs = res.URLs
		rec.Credits = res.Credits
	}
	s.recorder.Record(ctx, rec)
	trace.Flush(ctx, s.logger, "Generation trace")
	return res, err
}

func generationErrorMessage(err error) string {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		return upErr.Message
	}
	return err.Error()
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeValidationError(c, "invalid request body: "+err.Error())
		return
	}
	if len(body.Messages) == 0 {
		writeValidationError(c, "No messages found")
		return
	}
	prompt := strings.TrimSpace(promptFromMessage(body.Messages[len(body.Messages)-1]))
	if prompt == "" {
		writeValidationError(c, "the last message has no text content")
		return
	}
	model := body.Model
	if model == "" {
		model = s.catalog.DefaultModel()
	}

	trace := logging.NewRequestLog()
	ctx := logging.WithRequestLog(c.Request.Context(), trace)
	res, err := s.generate(ctx, upstream.GenerationRequest{
		Prompt:      prompt,
		Model:       model,
		Style:       body.Style,
		AspectRatio: body.Size,
		Outputs:     body.N,
	}, trace)
	if err != nil {
		writeGenerationError(c, err)
		return
	}

	images := make([]string, 0, len(res.URLs))
	for _, u := range res.URLs {
		images = append(images, fmt.Sprintf("![Image](%s)", u))
	}
	content := strings.Join(images, "\n\n")
	id := "chatcmpl-" + uuid.NewString()
	created := s.now().Unix()

	if body.Stream {
		s.streamChat(c, id, created, model, content, body.IsWebUI, trace)
		return
	}

	promptTokens := s.tokens.Count(prompt)
	completionTokens := s.tokens.Count(content)
	c.JSON(http.StatusOK, openai.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
}

// streamChat writes the finished result as server-sent events: an optional
// debug event with the request log, one content chunk, one stop chunk and
// the [DONE] marker.
func (s *Server) streamChat(c *gin.Context, id string, created int64, model, content string, debug bool, trace *logging.RequestLog) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	if debug {
		s.writeEvent(c, gin.H{"debug": trace.Entries()})
	}
	s.writeEvent(c, openai.ChatCompletionStreamResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index: 0,
			Delta: openai.ChatCompletionStreamChoiceDelta{Role: openai.ChatMessageRoleAssistant, Content: content},
		}},
	})
	s.writeEvent(c, openai.ChatCompletionStreamResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        openai.ChatCompletionStreamChoiceDelta{},
			FinishReason: openai.FinishReasonStop,
		}},
	})
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
}

func (s *Server) writeEvent(c *gin.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode stream event", zap.Error(err))
		return
	}
	_, _ = c.Writer.WriteString("data: " + string(data) + "\n\n")
	c.Writer.Flush()
}

func (s *Server) handleImageGenerations(c *gin.Context) {
	var body imageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeValidationError(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeValidationError(c, "prompt is required")
		return
	}

	trace := logging.NewRequestLog()
	ctx := logging.WithRequestLog(c.Request.Context(), trace)
	res, err := s.generate(ctx, upstream.GenerationRequest{
		Prompt:      body.Prompt,
		Model:       body.Model,
		Style:       body.Style,
		AspectRatio: catalog.AspectRatioForSize(body.Size),
		Outputs:     body.N,
	}, trace)
	if err != nil {
		writeGenerationError(c, err)
		return
	}

	data := make([]openai.ImageResponseDataInner, 0, len(res.URLs))
	for _, u := range res.URLs {
		data = append(data, openai.ImageResponseDataInner{URL: u})
	}
	c.JSON(http.StatusOK, gin.H{
		"created": s.now().Unix(),
		"data":    data,
	})
}

type analyzeRequest struct {
	ImageURL string `json:"image_url"`
}

// handleImageAnalyze answers with a fixed placeholder; the upstream offers no
// analysis endpoint.
func (s *Server) handleImageAnalyze(c *gin.Context) {
	var body analyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.ImageURL == "" {
		writeValidationError(c, "image_url is required")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"object":      "image.analysis",
		"created":     s.now().Unix(),
		"image_url":   body.ImageURL,
		"description": "Image analysis is not available for this backend.",
		"tags":        []string{},
		"placeholder": true,
	})
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	IsNSFW  bool   `json:"is_nsfw,omitempty"`
}

func (s *Server) handleModels(c *gin.Context) {
	models := s.catalog.Models()
	data := make([]modelEntry, 0, len(models))
	for _, m := range models {
		data = append(data, modelEntry{ID: m.ID, Object: "model", OwnedBy: ownedBy, IsNSFW: m.NSFW})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func (s *Server) handleStyles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"styles": s.catalog.Styles()})
}
