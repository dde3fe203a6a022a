package output

import (
	"encoding/json"

	"dbbackup/internal/backup"
	"dbbackup/internal/restore"
)

type jsonFormatter struct{}

type resultPayload struct {
	Format             string   `json:"format"`
	Success            bool     `json:"success"`
	Error              string   `json:"error,omitempty"`
	DurationSeconds    float64  `json:"durationSeconds"`
	StatementsExecuted int      `json:"statementsExecuted"`
	StatementsFailed   int      `json:"statementsFailed"`
	Errors             []string `json:"errors,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

func (jsonFormatter) FormatBackupResult(r *backup.Result) (string, error) {
	payload := resultPayload{Format: string(FormatJSON)}
	if r != nil {
		payload.Success = r.Success
		payload.Error = r.Error
		payload.DurationSeconds = r.DurationSeconds
		payload.StatementsExecuted = r.StatementsExecuted
		payload.StatementsFailed = r.StatementsFailed
		payload.Errors = r.Errors
	}
	return marshalJSON(payload)
}

func (jsonFormatter) FormatRestoreResult(r *restore.Result) (string, error) {
	payload := resultPayload{Format: string(FormatJSON)}
	if r != nil {
		payload.Success = r.Success
		payload.Error = r.Error
		payload.DurationSeconds = r.DurationSeconds
		payload.StatementsExecuted = r.StatementsExecuted
		payload.StatementsFailed = r.StatementsFailed
		payload.Errors = r.Errors
		payload.Warnings = r.Warnings
	}
	return marshalJSON(payload)
}

func marshalJSON(payload resultPayload) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
