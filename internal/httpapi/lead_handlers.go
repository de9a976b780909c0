package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"leadtrack.io/internal/lead"
)

type createLeadRequest struct {
	Title         string `json:"title"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Status        string `json:"status"`
	OwnerID       string `json:"owner_id"`
	Customer      string `json:"customer"`
	ContactPerson string `json:"contact_person"`
	ContactNumber string `json:"contact_number"`
}

// updateLeadRequest distinguishes omitted fields (nil) from explicit values.
type updateLeadRequest struct {
	Title          *string `json:"title"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Status         *string `json:"status"`
	OwnerID        *string `json:"owner_id"`
	Customer       *string `json:"customer"`
	ContactPerson  *string `json:"contact_person"`
	ContactNumber  *string `json:"contact_number"`
	Notes          string  `json:"notes"`
	MeetingDetails string  `json:"meeting_details"`
}

func (a *API) createLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	l, err := a.leads.Create(r.Context(), identityFrom(r), lead.CreateInput{
		Title:         req.Title,
		Email:         req.Email,
		Phone:         req.Phone,
		Status:        req.Status,
		OwnerID:       req.OwnerID,
		Customer:      req.Customer,
		ContactPerson: req.ContactPerson,
		ContactNumber: req.ContactNumber,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lead": l})
}

func (a *API) listLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := a.leads.List(r.Context(), identityFrom(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if leads == nil {
		leads = []lead.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (a *API) getLead(w http.ResponseWriter, r *http.Request) {
	detail, err := a.leads.Get(r.Context(), identityFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": detail})
}

func (a *API) updateLead(w http.ResponseWriter, r *http.Request) {
	var req updateLeadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	l, err := a.leads.UpdateWithAudit(r.Context(), chi.URLParam(r, "id"), lead.Changes{
		Title:          req.Title,
		Email:          req.Email,
		Phone:          req.Phone,
		Status:         req.Status,
		OwnerID:        req.OwnerID,
		Customer:       req.Customer,
		ContactPerson:  req.ContactPerson,
		ContactNumber:  req.ContactNumber,
		Notes:          req.Notes,
		MeetingDetails: req.MeetingDetails,
	}, identityFrom(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": l})
}

func (a *API) deleteLead(w http.ResponseWriter, r *http.Request) {
	if err := a.leads.Delete(r.Context(), identityFrom(r), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
