package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domain "github.com/oncallops/flare/pkg/types"
)

// Ticker runs one evaluation pass over a metric snapshot.
type Ticker interface {
	Tick(ctx context.Context, snap domain.Snapshot, now time.Time) ([]domain.DeliveryIntent, error)
}

// IngestHandler handles push-mode snapshot ingestion.
type IngestHandler struct {
	engine Ticker
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(e Ticker) *IngestHandler {
	return &IngestHandler{engine: e}
}

// IngestInput is the input for pushing a metric snapshot.
type IngestInput struct {
	Body domain.Snapshot `doc:"Metric snapshot: values are numbers, booleans, strings, or string arrays"`
}

// IngestOutput is the response for snapshot ingestion.
type IngestOutput struct {
	Body struct {
		Intents []domain.DeliveryIntent `json:"intents"`
		Count   int                     `json:"count"`
	}
}

// Ingest evaluates every enabled rule against the pushed snapshot and returns
// the delivery intents the tick produced.
func (h *IngestHandler) Ingest(ctx context.Context, input *IngestInput) (*IngestOutput, error) {
	intents, err := h.engine.Tick(ctx, input.Body, time.Now())
	if err != nil {
		return nil, huma.Error500InternalServerError("evaluation failed: " + err.Error())
	}
	if intents == nil {
		intents = []domain.DeliveryIntent{}
	}

	resp := &IngestOutput{}
	resp.Body.Intents = intents
	resp.Body.Count = len(intents)
	return resp, nil
}

// RegisterIngestRoutes registers the ingest endpoint with the Huma API.
func RegisterIngestRoutes(api huma.API, h *IngestHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "ingest-snapshot",
		Method:      http.MethodPost,
		Path:        "/api/v1/ingest",
		Summary:     "Push a metric snapshot",
		Description: "Runs one evaluation tick against the pushed snapshot and " +
			"returns the resulting delivery intents.",
		Tags:   []string{"ingest"},
		Errors: []int{http.StatusInternalServerError},
	}, h.Ingest)
}
