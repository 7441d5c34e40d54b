package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Busskov/study-clock/internal/chat"
	"github.com/Busskov/study-clock/internal/server/middleware"
	"github.com/Busskov/study-clock/internal/store"
)

type sendMessageRequest struct {
	Receiver int64  `json:"receiver"`
	Content  string `json:"content"`
}

type apiError struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// historyHandler returns every message exchanged between the caller and
// the user named in the path, oldest first.
func (a *App) historyHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.User == nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Detail: "request metadata missing"})
		return
	}
	peer, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Detail: "invalid peer user id"})
		return
	}

	records, err := a.store.QueryBetween(r.Context(), reqMeta.User.ID, peer)
	if err != nil {
		a.logger.Error("Failed to query message history", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, apiError{Detail: "failed to load message history"})
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// sendMessageHandler persists a message sent over plain HTTP and fans it
// out to any live sessions in the pair room, so a REST-sent message shows
// up in open chats immediately.
func (a *App) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.User == nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Detail: "request metadata missing"})
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Detail: "malformed request body"})
		return
	}
	if req.Receiver <= 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Detail: "receiver is required"})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Detail: "content is required"})
		return
	}

	record, err := a.store.Append(r.Context(), reqMeta.User.ID, req.Receiver, req.Content)
	if err != nil {
		a.logger.Error("Failed to persist message", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, apiError{Detail: "failed to store message"})
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		a.logger.Error("Failed to serialize message record", slog.Any("error", err))
	} else {
		a.dispatcher.Publish(chat.PairKey(record.Sender, record.Receiver), payload)
	}

	writeJSON(w, http.StatusCreated, record)
}
