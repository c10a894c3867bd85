package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/messaging"
)

type contentRequest struct {
	Content string `json:"content"`
}

type directRequest struct {
	EmployeeID string `json:"employeeId"`
	Content    string `json:"content"`
}

type readRequest struct {
	EmployeeID string `json:"employeeId"`
}

func (a *API) sendGroupMessage(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var in messaging.GroupMessageInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := a.engine.SendGroupMessage(r.Context(), act, chi.URLParam(r, "id"), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "message sent", msg)
}

func (a *API) sendInstitutionMessage(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var in contentRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.engine.SendInstitutionMessage(r.Context(), act, chi.URLParam(r, "id"), in.Content)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, outcomeMessage(out), out)
}

func (a *API) sendDirectMessage(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var in directRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if in.EmployeeID == "" {
		writeError(w, r, http.StatusBadRequest, "employeeId is required")
		return
	}
	out, err := a.engine.SendDirectMessage(r.Context(), act, in.EmployeeID, in.Content)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, outcomeMessage(out), out)
}

func outcomeMessage(out messaging.Outcome) string {
	if out.Delivered {
		return "message delivered"
	}
	return "message not delivered"
}

func (a *API) groupMessages(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	list, info, err := a.engine.GroupMessages(r.Context(), act, chi.URLParam(r, "id"), pageRequest(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writePage(w, list, info)
}

func (a *API) searchGroupMessages(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := a.engine.SearchGroupMessages(r.Context(), act, chi.URLParam(r, "id"), r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (a *API) unreadCount(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := a.engine.UnreadCount(r.Context(), act, chi.URLParam(r, "id"), r.URL.Query().Get("employee"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]int{"count": n})
}

func (a *API) institutionMessageCount(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := a.engine.InstitutionMessageCount(r.Context(), act, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]int{"count": n})
}

func (a *API) updateMessage(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var in contentRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := a.engine.UpdateMessage(r.Context(), act, chi.URLParam(r, "id"), in.Content)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "message updated", msg)
}

func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.engine.DeleteMessage(r.Context(), act, id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "message.delete", map[string]any{"message_id": id})
	writeData(w, http.StatusOK, "message deleted", nil)
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var in readRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.engine.MarkRead(r.Context(), act, chi.URLParam(r, "id"), in.EmployeeID); err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "message marked as read", nil)
}

func (a *API) directMessages(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	list, info, err := a.engine.DirectMessages(r.Context(), act, chi.URLParam(r, "employeeID"), pageRequest(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writePage(w, list, info)
}

func (a *API) messageLogs(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	list, info, err := a.logs.MessageLogs(r.Context(), act, audit.Kind(q.Get("type")), audit.Action(q.Get("action")), pageRequest(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writePage(w, list, info)
}

func (a *API) userLogs(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	list, info, err := a.logs.UserLogs(r.Context(), act, chi.URLParam(r, "id"), pageRequest(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writePage(w, list, info)
}
