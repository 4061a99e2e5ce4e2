package chain

import (
	"context"
	"fmt"
)

// LLM is the language-model collaborator: SQL generation and answer
// generation.
type LLM interface {
	GenerateSQL(ctx context.Context, question, schema string) (string, error)
	Answer(ctx context.Context, question, query, result string) (string, error)
}

// Executor runs a statement against one conversation's database and captures
// the outcome as text, including execution failures.
type Executor interface {
	Execute(ctx context.Context, conversationID int64, query string) string
	SchemaDescription() string
}

// Result is the transient product of one pipeline invocation.
type Result struct {
	Query  string
	Result string
}

// Chain is the two-stage question -> SQL -> result -> answer pipeline. It is
// stateless per invocation; all state lives in the conversation's database.
type Chain struct {
	llm  LLM
	exec Executor
}

func New(llm LLM, exec Executor) *Chain {
	return &Chain{llm: llm, exec: exec}
}

// GenerateAndExecute turns the question into a SQL statement and runs it.
// Generation failures propagate as errors; execution failures are captured
// inside Result.Result so the explanation stage still runs.
func (c *Chain) GenerateAndExecute(ctx context.Context, conversationID int64, question string) (Result, error) {
	query, err := c.llm.GenerateSQL(ctx, question, c.exec.SchemaDescription())
	if err != nil {
		return Result{}, fmt.Errorf("write query: %w", err)
	}
	return Result{
		Query:  query,
		Result: c.exec.Execute(ctx, conversationID, query),
	}, nil
}

// Explain produces the natural-language answer for a completed execution.
func (c *Chain) Explain(ctx context.Context, question string, r Result) (string, error) {
	answer, err := c.llm.Answer(ctx, question, r.Query, r.Result)
	if err != nil {
		return "", fmt.Errorf("explain result: %w", err)
	}
	return answer, nil
}
