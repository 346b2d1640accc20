// Package classifier identifies the document type and criticality of an image
// through an OpenAI-compatible chat completions endpoint with vision input.
package classifier

import (
	"context"
	"strings"
	"time"
)

// DefaultPrompt instructs the model to answer with the JSON shape parsed into answer.
const DefaultPrompt = `You classify scanned business documents.
Identify the document type (for example invoice, receipt, contract, identity_document,
bank_statement, letter, form, other) and how critical it is to retain
(low, medium, high, critical).
Respond with JSON only:
{"document_type": "...", "criticality_level": "...", "confidence": 0.0, "rationale": "..."}`

// Config captures the runtime settings required to reach the classification model.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Prompt      string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration

	// Criticality maps a document type to the criticality level recorded for it.
	// Types absent from the table keep the model's answer.
	Criticality        map[string]string
	DefaultCriticality string
}

// Input is one file submitted for classification.
type Input struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Result is the classification outcome for one file.
type Result struct {
	DocumentType     string  `json:"document_type"`
	CriticalityLevel string  `json:"criticality_level"`
	Confidence       float64 `json:"confidence"`
	Rationale        string  `json:"rationale"`
	Model            string  `json:"model"`
}

// System classifies file content.
type System interface {
	Classify(ctx context.Context, in Input) (*Result, error)
}

type answer struct {
	DocumentType     string  `json:"document_type"`
	CriticalityLevel string  `json:"criticality_level"`
	Confidence       float64 `json:"confidence"`
	Rationale        string  `json:"rationale"`
}

// resolve normalizes the model answer and applies the criticality table.
func (c *Config) resolve(a answer) *Result {
	docType := normalize(a.DocumentType)
	if docType == "" {
		docType = "unknown"
	}

	level := normalize(c.Criticality[docType])
	if level == "" {
		level = normalize(a.CriticalityLevel)
	}
	if level == "" {
		level = normalize(c.DefaultCriticality)
	}

	return &Result{
		DocumentType:     docType,
		CriticalityLevel: level,
		Confidence:       min(max(a.Confidence, 0), 1),
		Rationale:        strings.TrimSpace(a.Rationale),
		Model:            c.Model,
	}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}
