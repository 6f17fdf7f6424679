package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fableworks/taskcore/pkg/provider"
	"github.com/fableworks/taskcore/pkg/retry"
	"github.com/fableworks/taskcore/pkg/task"
	"github.com/fableworks/taskcore/pkg/types"
)

// TypeChapterContinuation is the task type key for single-chapter
// continuation generation.
const TypeChapterContinuation = "chapter.continuation"

// ChapterParams is the payload for a chapter continuation task.
type ChapterParams struct {
	ProjectID string          `json:"project_id"`
	ChapterID string          `json:"chapter_id"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	Options   json.RawMessage `json:"options,omitempty"`
}

func (p *ChapterParams) validate() error {
	switch {
	case p.ProjectID == "":
		return errors.New("project_id is required")
	case p.ChapterID == "":
		return errors.New("chapter_id is required")
	case p.Provider == "":
		return errors.New("provider is required")
	case p.Model == "":
		return errors.New("model is required")
	case p.Prompt == "":
		return errors.New("prompt is required")
	}
	return nil
}

// ChapterResult is the terminal result payload of a continuation task.
type ChapterResult struct {
	ChapterID    string `json:"chapter_id"`
	Content      string `json:"content"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason"`
}

// ChapterContinuation generates the next stretch of a chapter through an AI
// provider. The provider client is expected to be a throttled wrapper, so
// admission control and limiter feedback happen per call without this
// executable knowing about rate limiting at all.
type ChapterContinuation struct {
	client provider.Client
}

// NewChapterContinuation creates the executable around client.
func NewChapterContinuation(client provider.Client) *ChapterContinuation {
	return &ChapterContinuation{client: client}
}

func (c *ChapterContinuation) Type() string { return TypeChapterContinuation }

func (c *ChapterContinuation) ValidateParameters(params json.RawMessage) error {
	var p ChapterParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("malformed parameters: %w", err)
	}
	return p.validate()
}

func (c *ChapterContinuation) Execute(ctx *task.Context) types.Outcome {
	var p ChapterParams
	if err := ctx.Parameters(&p); err != nil {
		return types.Fail(types.ErrorClassInput, err.Error())
	}

	if ctx.Cancelled() {
		return types.Cancel("cancelled before generation started")
	}

	if err := ctx.UpdateProgress(map[string]interface{}{
		"stage":      "generating",
		"chapter_id": p.ChapterID,
	}); err != nil {
		ctx.LogError("progress update failed", err)
	}

	requestID := retry.RequestID(ctx.TaskID(), ctx.RetryCount()+1)
	callCtx := provider.WithRequestID(ctx.Context(), requestID)

	resp, err := c.client.Generate(callCtx, provider.Request{
		Provider: p.Provider,
		Model:    p.Model,
		UserID:   ctx.UserID(),
		Prompt:   p.Prompt,
		Options:  p.Options,
	})
	if err != nil {
		if ctx.Cancelled() {
			return types.Cancel("cancelled during generation")
		}
		ctx.LogError("chapter generation failed", err)
		return types.FromError(err)
	}

	result, err := json.Marshal(ChapterResult{
		ChapterID:    p.ChapterID,
		Content:      resp.Content,
		TokensUsed:   resp.TokensUsed,
		FinishReason: resp.FinishReason,
	})
	if err != nil {
		return types.Fail(types.ErrorClassInternal, fmt.Sprintf("failed to encode result: %v", err))
	}
	return types.Succeed(result)
}

// Cancel opts the task into mid-flight cancellation. The in-flight provider
// call is aborted through the execution context; nothing else to tear down.
func (c *ChapterContinuation) Cancel(ctx *task.Context) error {
	ctx.LogInfo("cancellation requested")
	return nil
}
