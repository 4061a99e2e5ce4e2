package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/c0t0ber/finance-gpt/internal/config"
)

const sqlPromptFormat = `You are a SQLite expert. Given an input question, create a syntactically correct SQLite query to run.
Unless the user specifies in the question a specific number of examples to obtain, query for at most %d results using the LIMIT clause as per SQLite. You can order the results to return the most informative data in the database.
Never query for all columns from a table. You must query only the columns that are needed to answer the question. Wrap each column name in double quotes (") to denote them as delimited identifiers.
Pay attention to use only the column names you can see in the tables below. Be careful to not query for columns that do not exist.
Pay attention to use date('now') function to get the current date, if the question involves "today".

Only use the following tables:
%s

%s

Return only the SQL query, with no explanation and no formatting.

Question: %s
SQLQuery: `

const domainContext = `You are a bot for recording and reading financial transactions.

The table you work with has the following columns:
amount - a positive or negative number: the money the user earned or spent
category - a text label for the expense or income, for example "food", "transport", "salary"; infer it from the description
description - free text the user wrote together with the amount
record_time - the date and time the record was made; always insert the current date and time when writing
currency - the currency of the record; defaults to IDR when the user does not name one

If the user writes an amount and a description, that means you must record the transaction in the database.`

const answerPromptFormat = `Answer the user's question by analyzing the SQL query and the result of that query:
If the query contains INSERT, UPDATE or DELETE and the result has no error, answer "Query executed successfully".
If the query contains SELECT, inspect the query result and answer the user's question.

Question: %s
SQL Query: %s
SQL Result: %s
Answer: `

// chatCompletions is the slice of the openai-go client the Client needs,
// kept as an interface so tests can substitute a fake.
type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements the two model capabilities of the pipeline: turning a
// question into SQL and turning a query plus its result into an answer.
type Client struct {
	completions chatCompletions
	model       string
	maxTokens   int
	topK        int
}

func New(cfg config.ProviderConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	}
	if cfg.BaseURL != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = config.DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}

	return &Client{
		completions: &client.Chat.Completions,
		model:       model,
		maxTokens:   maxTokens,
		topK:        config.DefaultTopK,
	}, nil
}

// GenerateSQL asks the model for a single SQLite statement answering the
// question against the given schema. The statement is executed as-is by the
// caller; there is no local validation.
func (c *Client) GenerateSQL(ctx context.Context, question, schema string) (string, error) {
	out, err := c.complete(ctx, buildSQLPrompt(question, schema, c.topK))
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	query := CleanSQL(out)
	if query == "" {
		return "", errors.New("generate sql: model returned no statement")
	}
	return query, nil
}

// Answer composes the user-facing answer. The mutating-vs-select policy lives
// in the prompt text; compliance is up to the model.
func (c *Client) Answer(ctx context.Context, question, query, result string) (string, error) {
	out, err := c.complete(ctx, buildAnswerPrompt(question, query, result))
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	completion, err := c.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
		Temperature:         openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty choices in completion")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty content in completion")
	}
	return content, nil
}

func buildSQLPrompt(question, schema string, topK int) string {
	return fmt.Sprintf(sqlPromptFormat, topK, schema, domainContext, question)
}

func buildAnswerPrompt(question, query, result string) string {
	return fmt.Sprintf(answerPromptFormat, question, query, result)
}

// CleanSQL strips the decoration models tend to wrap statements in: code
// fences, an optional language tag, and a leading "SQLQuery:" label.
func CleanSQL(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		if nl := strings.Index(s, "\n"); nl >= 0 {
			firstLine := strings.TrimSpace(s[:nl])
			if firstLine != "" && !strings.Contains(firstLine, " ") {
				s = s[nl+1:]
			}
		}
		s = strings.TrimSpace(s)
	}

	for _, label := range []string{"SQLQuery:", "SQL Query:", "SQL:"} {
		if strings.HasPrefix(s, label) {
			s = strings.TrimSpace(strings.TrimPrefix(s, label))
			break
		}
	}

	return s
}
