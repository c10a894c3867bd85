package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/auth"
	"elaqe.org/internal/directory"
	"elaqe.org/internal/groups"
)

type employeeRequest struct {
	EmployeeID string `json:"employeeId"`
}

func (a *API) institutionTypes(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", directory.InstitutionTypes)
}

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var in groups.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.groups.Create(r.Context(), act, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "group.create", map[string]any{"group_id": g.ID, "institution_id": g.InstitutionID})
	w.Header().Set("Location", "/v1/groups/"+g.ID)
	writeData(w, http.StatusCreated, "group created", g)
}

func (a *API) listGroups(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	list, info, err := a.groups.List(r.Context(), act, r.URL.Query().Get("institution"), pageRequest(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writePage(w, list, info)
}

func (a *API) searchGroups(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	list, info, err := a.groups.Search(r.Context(), act, q.Get("q"), q.Get("institution"), pageRequest(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writePage(w, list, info)
}

func (a *API) getGroup(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	g, err := a.groups.Get(r.Context(), act, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", g)
}

func (a *API) updateGroup(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var in groups.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.groups.Update(r.Context(), act, chi.URLParam(r, "id"), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "group updated", g)
}

func (a *API) deleteGroup(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.groups.Delete(r.Context(), act, id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "group.delete", map[string]any{"group_id": id})
	writeData(w, http.StatusOK, "group deleted", nil)
}

func (a *API) addMember(w http.ResponseWriter, r *http.Request) {
	a.changeMembership(w, r, "member added", func(in membershipCall) (groups.Group, error) {
		return a.groups.AddMember(r.Context(), in.act, in.groupID, in.employeeID)
	})
}

func (a *API) addAdmin(w http.ResponseWriter, r *http.Request) {
	a.changeMembership(w, r, "admin added", func(in membershipCall) (groups.Group, error) {
		return a.groups.AddAdmin(r.Context(), in.act, in.groupID, in.employeeID)
	})
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	a.changeMembership(w, r, "member removed", func(in membershipCall) (groups.Group, error) {
		return a.groups.RemoveMember(r.Context(), in.act, in.groupID, in.employeeID)
	})
}

func (a *API) removeAdmin(w http.ResponseWriter, r *http.Request) {
	a.changeMembership(w, r, "admin removed", func(in membershipCall) (groups.Group, error) {
		return a.groups.RemoveAdmin(r.Context(), in.act, in.groupID, in.employeeID)
	})
}

type membershipCall struct {
	act        auth.Actor
	groupID    string
	employeeID string
}

// changeMembership reads the employee from the path on DELETE and from the body on POST.
func (a *API) changeMembership(w http.ResponseWriter, r *http.Request, msg string, fn func(membershipCall) (groups.Group, error)) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	call := membershipCall{act: act, groupID: chi.URLParam(r, "id"), employeeID: chi.URLParam(r, "employeeID")}
	if r.Method == http.MethodPost {
		var req employeeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		call.employeeID = req.EmployeeID
	}
	if call.employeeID == "" {
		writeError(w, r, http.StatusBadRequest, "employeeId is required")
		return
	}
	g, err := fn(call)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msg, g)
}

func (a *API) employeeGroups(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := a.groups.EmployeeGroups(r.Context(), act, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (a *API) institutionGroups(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := a.groups.InstitutionGroups(r.Context(), act, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}
