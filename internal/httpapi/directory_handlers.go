package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"leadtrack.io/internal/auth"
)

type companyRequest struct {
	Name string `json:"name"`
	Size *int   `json:"size"`
}

type companyPatchRequest struct {
	Name *string `json:"name"`
	Size *int    `json:"size"`
}

type assignRequest struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
}

type userUpdateRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Role  *string `json:"role"`
}

func (a *API) createCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.directory.CreateCompany(r.Context(), auth.CompanyInput{Name: req.Name, Size: req.Size})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"company": c})
}

func (a *API) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := a.directory.ListCompanies(r.Context(), identityFrom(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if companies == nil {
		companies = []auth.CompanyDetail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (a *API) getCompany(w http.ResponseWriter, r *http.Request) {
	c, err := a.directory.GetCompany(r.Context(), identityFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": c})
}

func (a *API) updateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.directory.UpdateCompany(r.Context(), identityFrom(r), chi.URLParam(r, "id"),
		auth.CompanyUpdate{Name: req.Name, Size: req.Size})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": c})
}

func (a *API) deleteCompany(w http.ResponseWriter, r *http.Request) {
	if err := a.directory.DeleteCompany(r.Context(), identityFrom(r), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignCompany(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.directory.AssignCompany(r.Context(), identityFrom(r), req.UserID, req.CompanyID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (a *API) listCompanyUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.directory.ListCompanyUsers(r.Context(), identityFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.Identity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req userUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.directory.UpdateUser(r.Context(), identityFrom(r), chi.URLParam(r, "id"),
		auth.UserUpdate{Name: req.Name, Email: req.Email, Role: req.Role})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}
