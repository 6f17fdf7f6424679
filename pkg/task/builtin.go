package task

import (
	"encoding/json"
	"fmt"

	"github.com/fableworks/taskcore/pkg/types"
)

// Echo copies its parameters into its result unchanged. Used for transport
// smoke checks and as the minimal reference executable.
type Echo struct{}

func (Echo) Type() string { return "echo" }

func (Echo) ValidateParameters(params json.RawMessage) error {
	if len(params) == 0 {
		return fmt.Errorf("echo requires parameters")
	}
	var v interface{}
	if err := json.Unmarshal(params, &v); err != nil {
		return fmt.Errorf("echo parameters are not valid JSON: %w", err)
	}
	return nil
}

func (Echo) Execute(ctx *Context) types.Outcome {
	return types.Succeed(ctx.RawParameters())
}
