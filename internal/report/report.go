package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gapscan/internal/services"
)

// Failure records one item the scan could not check.
type Failure struct {
	Kind    services.Kind `json:"kind"`
	ItemID  string        `json:"item_id"`
	Title   string        `json:"title,omitempty"`
	Stage   string        `json:"stage"`
	Message string        `json:"message"`
}

// FailureFrom classifies err into a Failure. Cancellation is reported as
// canceled rather than as a lookup failure.
func FailureFrom(itemID, title, stage string, err error) Failure {
	kind := services.Classify(err)
	if kind == "" {
		kind = services.KindUnknown
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if errors.Is(err, context.Canceled) {
		msg = "scan canceled before this item completed"
	}
	return Failure{Kind: kind, ItemID: itemID, Title: title, Stage: stage, Message: msg}
}

// Header carries the fields shared by both report kinds.
type Header struct {
	ScanID      string    `json:"scan_id,omitempty"`
	Library     string    `json:"library,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	AsOf        time.Time `json:"as_of"`
	// Partial is set when the scan was canceled before every item was
	// processed.
	Partial   bool `json:"partial"`
	Processed int  `json:"processed"`
	Total     int  `json:"total"`
	// Stats is filled by the scan orchestrator; reconcilers leave it nil.
	Stats *services.ScanStats `json:"stats,omitempty"`
}

// Percent returns part/whole as a percentage, 100 for an empty whole.
func Percent(part, whole int) float64 {
	if whole <= 0 {
		return 100
	}
	return float64(part) / float64(whole) * 100
}

// Code renders a season/episode pair as S01E05.
func Code(season, episode int) string {
	return fmt.Sprintf("S%02dE%02d", season, episode)
}
