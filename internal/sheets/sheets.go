package sheets

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/c0t0ber/finance-gpt/internal/config"
)

// GoogleSheet appends rows to a single spreadsheet range using a service
// account.
type GoogleSheet struct {
	svc           *gsheets.Service
	spreadsheetID string
	appendRange   string
}

func New(ctx context.Context, cfg config.SheetsConfig) (*GoogleSheet, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("sheets spreadsheet id is required")
	}
	if cfg.CredentialsFile == "" {
		return nil, errors.New("sheets credentials file is required")
	}

	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	appendRange := cfg.Range
	if appendRange == "" {
		appendRange = config.DefaultSheetRange
	}

	return &GoogleSheet{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		appendRange:   appendRange,
	}, nil
}

func (g *GoogleSheet) AppendRow(ctx context.Context, values []any) error {
	vr := &gsheets.ValueRange{Values: [][]any{values}}
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, g.appendRange, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}
