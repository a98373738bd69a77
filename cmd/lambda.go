package cmd

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
)

// Response is returned to the Lambda runtime after a successful run.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Handler runs the federation chain once per invocation. The triggering event
// is ignored.
type Handler struct {
	chain  ChainRunner
	logger *log.Logger
}

// NewHandler creates a Lambda handler around chain.
func NewHandler(chain ChainRunner, logger *log.Logger) *Handler {
	return &Handler{chain: chain, logger: logger}
}

// Handle is passed to lambda.Start.
func (h *Handler) Handle(ctx context.Context, _ json.RawMessage) (Response, error) {
	result, err := h.chain.Run(ctx)
	if err != nil {
		return Response{}, err
	}

	h.logger.Info("Uploaded object", "bucket", result.Bucket, "object", result.Object, "generation", result.Generation)
	return Response{StatusCode: http.StatusOK, Body: "Success"}, nil
}
