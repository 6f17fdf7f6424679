package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fableworks/taskcore/pkg/provider"
	"github.com/fableworks/taskcore/pkg/retry"
	"github.com/fableworks/taskcore/pkg/task"
	"github.com/fableworks/taskcore/pkg/types"
)

// Task type keys for batch summarization.
const (
	TypeSummaryBatch   = "summary.batch"
	TypeSummaryChapter = "summary.chapter"
)

// summaryPollInterval is how often a batch parent re-reads its sub-task
// summary while waiting for children.
const summaryPollInterval = 500 * time.Millisecond

// SummaryBatchParams is the payload for a batch summarization task.
type SummaryBatchParams struct {
	ProjectID  string   `json:"project_id"`
	ChapterIDs []string `json:"chapter_ids"`
	Provider   string   `json:"provider"`
	Model      string   `json:"model"`
}

// SummaryChapterParams is the payload for one chapter summary sub-task.
type SummaryChapterParams struct {
	ProjectID string `json:"project_id"`
	ChapterID string `json:"chapter_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// SummaryBatchResult is the terminal result of a batch parent.
type SummaryBatchResult struct {
	ProjectID string                   `json:"project_id"`
	Requested int                      `json:"requested"`
	ByStatus  map[types.TaskStatus]int `json:"by_status"`
}

// SummaryBatch fans a project's chapters out into one summary sub-task each
// and waits for all of them to settle. The batch itself always reports
// success; when some children failed, the count-by-status summary on the
// record turns the terminal status into completed-with-errors.
type SummaryBatch struct{}

// NewSummaryBatch creates the fan-out executable.
func NewSummaryBatch() *SummaryBatch { return &SummaryBatch{} }

func (s *SummaryBatch) Type() string { return TypeSummaryBatch }

func (s *SummaryBatch) ValidateParameters(params json.RawMessage) error {
	var p SummaryBatchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("malformed parameters: %w", err)
	}
	switch {
	case p.ProjectID == "":
		return errors.New("project_id is required")
	case len(p.ChapterIDs) == 0:
		return errors.New("chapter_ids must not be empty")
	case p.Provider == "":
		return errors.New("provider is required")
	case p.Model == "":
		return errors.New("model is required")
	}
	return nil
}

func (s *SummaryBatch) Execute(ctx *task.Context) types.Outcome {
	var p SummaryBatchParams
	if err := ctx.Parameters(&p); err != nil {
		return types.Fail(types.ErrorClassInput, err.Error())
	}

	for i, chapterID := range p.ChapterIDs {
		if ctx.Cancelled() {
			return types.Cancel("cancelled during fan-out")
		}
		_, err := ctx.SubmitSubTask(TypeSummaryChapter, SummaryChapterParams{
			ProjectID: p.ProjectID,
			ChapterID: chapterID,
			Provider:  p.Provider,
			Model:     p.Model,
		})
		if err != nil {
			// Children already submitted keep running; their outcomes land
			// in the summary either way.
			ctx.LogError("sub-task submission failed", err)
			return types.Fail(types.ErrorClassInternal,
				fmt.Sprintf("failed to submit summary for chapter %s: %v", chapterID, err))
		}
		if err := ctx.UpdateProgress(map[string]interface{}{
			"stage":     "fan_out",
			"submitted": i + 1,
			"total":     len(p.ChapterIDs),
		}); err != nil {
			ctx.LogError("progress update failed", err)
		}
	}

	summary, err := ctx.AwaitSubTasks(summaryPollInterval)
	if err != nil {
		if ctx.Cancelled() {
			return types.Cancel("cancelled while waiting for chapter summaries")
		}
		return types.Fail(types.ErrorClassInternal, fmt.Sprintf("failed waiting for sub-tasks: %v", err))
	}

	result, err := json.Marshal(SummaryBatchResult{
		ProjectID: p.ProjectID,
		Requested: len(p.ChapterIDs),
		ByStatus:  summary,
	})
	if err != nil {
		return types.Fail(types.ErrorClassInternal, fmt.Sprintf("failed to encode result: %v", err))
	}
	return types.Succeed(result)
}

// Cancel opts the batch into mid-flight cancellation. Fan-out and waiting
// both watch the execution context; already-submitted children are left to
// finish on their own.
func (s *SummaryBatch) Cancel(ctx *task.Context) error {
	ctx.LogInfo("cancellation requested")
	return nil
}

// ChapterSummary summarizes one chapter through an AI provider. It is the
// leaf of the summary.batch fan-out but also works as a standalone task.
type ChapterSummary struct {
	client provider.Client
}

// NewChapterSummary creates the executable around client.
func NewChapterSummary(client provider.Client) *ChapterSummary {
	return &ChapterSummary{client: client}
}

func (c *ChapterSummary) Type() string { return TypeSummaryChapter }

func (c *ChapterSummary) ValidateParameters(params json.RawMessage) error {
	var p SummaryChapterParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("malformed parameters: %w", err)
	}
	switch {
	case p.ProjectID == "":
		return errors.New("project_id is required")
	case p.ChapterID == "":
		return errors.New("chapter_id is required")
	case p.Provider == "":
		return errors.New("provider is required")
	case p.Model == "":
		return errors.New("model is required")
	}
	return nil
}

func (c *ChapterSummary) Execute(ctx *task.Context) types.Outcome {
	var p SummaryChapterParams
	if err := ctx.Parameters(&p); err != nil {
		return types.Fail(types.ErrorClassInput, err.Error())
	}

	requestID := retry.RequestID(ctx.TaskID(), ctx.RetryCount()+1)
	callCtx := provider.WithRequestID(ctx.Context(), requestID)

	resp, err := c.client.Generate(callCtx, provider.Request{
		Provider: p.Provider,
		Model:    p.Model,
		UserID:   ctx.UserID(),
		Prompt:   fmt.Sprintf("Summarize chapter %s of project %s.", p.ChapterID, p.ProjectID),
	})
	if err != nil {
		if ctx.Cancelled() {
			return types.Cancel("cancelled during summarization")
		}
		return types.FromError(err)
	}

	result, err := json.Marshal(map[string]interface{}{
		"chapter_id": p.ChapterID,
		"summary":    resp.Content,
	})
	if err != nil {
		return types.Fail(types.ErrorClassInternal, fmt.Sprintf("failed to encode result: %v", err))
	}
	return types.Succeed(result)
}
