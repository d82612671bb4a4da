package assistant

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/tenantctx/internal/http/middleware"
	"github.com/tendant/tenantctx/internal/httputil"
	"github.com/tendant/tenantctx/pkg/assistant"
)

// Chatter answers a conversation. *assistant.Client implements it.
type Chatter interface {
	Chat(ctx context.Context, messages []assistant.Message, model string) (*assistant.Reply, error)
}

// Handler proxies chat requests for authenticated tenants.
type Handler struct {
	logger  *slog.Logger
	chatter Chatter
}

// NewHandler creates a new assistant handler.
func NewHandler(logger *slog.Logger, chatter Chatter) *Handler {
	return &Handler{
		logger:  logger,
		chatter: chatter,
	}
}

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Messages []assistant.Message `json:"messages"`
	Model    string              `json:"model,omitempty"`
}

// ChatResponse is the success body.
type ChatResponse struct {
	Success bool            `json:"success"`
	Reply   string          `json:"reply"`
	Model   string          `json:"model"`
	Usage   assistant.Usage `json:"usage"`
}

// Chat forwards the conversation to the assistant. TenantAuth must run
// first.
// POST /v1/assistant/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rc, ok := middleware.GetRequestContext(ctx)
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "unauthorized")
		return
	}

	var req ChatRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httputil.Error(w, status, err.Error())
		return
	}

	reply, err := h.chatter.Chat(ctx, req.Messages, req.Model)
	if err != nil {
		middleware.AddError(ctx, err)
		h.logger.WarnContext(ctx, "assistant chat failed",
			"tenant_id", rc.TenantID,
			"error", err,
		)
		httputil.RequestError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ChatResponse{
		Success: true,
		Reply:   reply.Content,
		Model:   reply.Model,
		Usage:   reply.Usage,
	})
}
