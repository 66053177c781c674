package pii

import (
	"fmt"

	"github.com/gatewarden/gatewarden/internal/policy"
	gwerrors "github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/types"
)

// redactedMarker replaces the raw matched text in reports whenever the
// action rewrites content. Only warn reports the real value.
const redactedMarker = "[REDACTED]"

// blockedNotice replaces a response message whose content triggered a
// block; the upstream call has already happened and cannot be aborted.
const blockedNotice = "Response blocked due to PII detection."

// Position is a finding's span in the original text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ReportEntry is one finding as surfaced to clients and telemetry.
type ReportEntry struct {
	Location string   `json:"location"`
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Position Position `json:"position"`
}

// ProcessRequest scans every message's content, applies the action, and
// returns a processed copy plus the findings report. The input request is
// never mutated. A block action aborts with a PIIBlocked error before any
// upstream call can happen.
func (s *Scanner) ProcessRequest(req *types.ChatRequest, action policy.Action, entities []string) (*types.ChatRequest, []ReportEntry, error) {
	processed := req.Clone()
	var report []ReportEntry

	for i := range processed.Messages {
		content := processed.Messages[i].Content
		findings := Filter(s.Detect(content), entities)
		if len(findings) == 0 {
			continue
		}

		location := fmt.Sprintf("messages[%d].content", i)
		report = append(report, reportFor(location, findings, action)...)

		switch action {
		case policy.ActionBlock:
			return nil, report, gwerrors.NewPIIBlockedError(req.Model,
				fmt.Sprintf("PII detected in request: %d instances found", len(findings)))
		case policy.ActionRedact:
			processed.Messages[i].Content = Redact(content, findings)
		case policy.ActionHash:
			processed.Messages[i].Content = Hash(content, findings)
		case policy.ActionWarn:
			// Report only, leave the text unchanged.
		}
	}

	return processed, report, nil
}

// ProcessResponse mirrors ProcessRequest over each choice's message
// content. Block replaces only the offending content with a fixed notice
// instead of failing: the upstream work is already done.
func (s *Scanner) ProcessResponse(resp *types.ChatResponse, action policy.Action, entities []string) (*types.ChatResponse, []ReportEntry) {
	processed := resp.Clone()
	var report []ReportEntry

	for i := range processed.Choices {
		content := processed.Choices[i].Message.Content
		findings := Filter(s.Detect(content), entities)
		if len(findings) == 0 {
			continue
		}

		location := fmt.Sprintf("choices[%d].message.content", i)
		report = append(report, reportFor(location, findings, action)...)

		switch action {
		case policy.ActionBlock:
			processed.Choices[i].Message.Content = blockedNotice
		case policy.ActionRedact:
			processed.Choices[i].Message.Content = Redact(content, findings)
		case policy.ActionHash:
			processed.Choices[i].Message.Content = Hash(content, findings)
		case policy.ActionWarn:
		}
	}

	return processed, report
}

func reportFor(location string, findings []Finding, action policy.Action) []ReportEntry {
	entries := make([]ReportEntry, 0, len(findings))
	for _, f := range findings {
		text := redactedMarker
		if action == policy.ActionWarn {
			text = f.Text
		}
		entries = append(entries, ReportEntry{
			Location: location,
			Type:     f.Type,
			Text:     text,
			Position: Position{Start: f.Start, End: f.End},
		})
	}
	return entries
}
