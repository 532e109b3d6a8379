package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"wasender/internal/domain"
	"wasender/internal/service"
	"wasender/internal/store"
	"wasender/internal/util"
)

// DirectoryStore covers the contact/template CRUD the boundary API exposes.
type DirectoryStore interface {
	InsertContact(ctx context.Context, in store.ContactInsert) error
	GetContact(ctx context.Context, id string) (store.Contact, bool, error)
	ListContacts(ctx context.Context) ([]store.Contact, error)
	UpdateContact(ctx context.Context, in store.ContactInsert) (bool, error)
	DeleteContact(ctx context.Context, id string) (bool, error)

	InsertTemplate(ctx context.Context, in store.TemplateInsert) error
	GetTemplate(ctx context.Context, id string) (store.Template, bool, error)
	ListTemplates(ctx context.Context) ([]store.Template, error)
	UpdateTemplate(ctx context.Context, in store.TemplateInsert) (bool, error)
	DeleteTemplate(ctx context.Context, id string) (bool, error)
}

type API struct {
	Svc       *service.CampaignService
	Directory DirectoryStore
}

func (a *API) Register(m *mux.Router) {
	m.HandleFunc("/v1/contacts", a.handleCreateContact).Methods(http.MethodPost)
	m.HandleFunc("/v1/contacts", a.handleListContacts).Methods(http.MethodGet)
	m.HandleFunc("/v1/contacts/{id}", a.handleGetContact).Methods(http.MethodGet)
	m.HandleFunc("/v1/contacts/{id}", a.handleUpdateContact).Methods(http.MethodPut)
	m.HandleFunc("/v1/contacts/{id}", a.handleDeleteContact).Methods(http.MethodDelete)

	m.HandleFunc("/v1/templates", a.handleCreateTemplate).Methods(http.MethodPost)
	m.HandleFunc("/v1/templates", a.handleListTemplates).Methods(http.MethodGet)
	m.HandleFunc("/v1/templates/{id}", a.handleGetTemplate).Methods(http.MethodGet)
	m.HandleFunc("/v1/templates/{id}", a.handleUpdateTemplate).Methods(http.MethodPut)
	m.HandleFunc("/v1/templates/{id}", a.handleDeleteTemplate).Methods(http.MethodDelete)

	m.HandleFunc("/v1/campaigns", a.handleCreateCampaign).Methods(http.MethodPost)
	m.HandleFunc("/v1/campaigns", a.handleListCampaigns).Methods(http.MethodGet)
	m.HandleFunc("/v1/campaigns/{id}", a.handleGetCampaign).Methods(http.MethodGet)
	m.HandleFunc("/v1/campaigns/{id}", a.handleDeleteCampaign).Methods(http.MethodDelete)
	m.HandleFunc("/v1/campaigns/{id}/messages", a.handleListMessages).Methods(http.MethodGet)
	m.HandleFunc("/v1/campaigns/{id}/start", a.handleStartCampaign).Methods(http.MethodPost)
	m.HandleFunc("/v1/campaigns/{id}/pause", a.handlePauseCampaign).Methods(http.MethodPost)
	m.HandleFunc("/v1/campaigns/{id}/resume", a.handleResumeCampaign).Methods(http.MethodPost)
}

// --- campaigns ---

func (a *API) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	resp, err := a.Svc.CreateCampaign(r.Context(), req, util.NowUTC())
	if err != nil {
		slog.Error("create campaign failed", "err", err, "name", req.Name, "contacts", len(req.ContactIDs))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := a.Svc.ListCampaigns(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		slog.Error("list campaigns failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignsJSON(campaigns))
}

func (a *API) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	details, err := a.Svc.GetCampaign(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (a *API) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.Svc.DeleteCampaign(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msgs, err := a.Svc.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesJSON(msgs))
}

func (a *API) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, a.Svc.Start, "start")
}

func (a *API) handlePauseCampaign(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, a.Svc.Pause, "pause")
}

func (a *API) handleResumeCampaign(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, a.Svc.Resume, "resume")
}

func (a *API) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error, name string) {
	id := mux.Vars(r)["id"]
	if err := op(r.Context(), id); err != nil {
		slog.Warn("campaign lifecycle request rejected", "op", name, "campaign_id", id, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"campaignId": id, "op": name})
}

// --- contacts ---

func (a *API) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	in := store.ContactInsert{
		ID:           util.NewContactID(),
		Name:         req.Name,
		Phone:        util.NormalizePhone(req.Phone),
		Email:        req.Email,
		Tags:         req.Tags,
		CustomFields: req.CustomFields,
		Now:          util.NowUTC(),
	}
	if err := a.Directory.InsertContact(r.Context(), in); err != nil {
		slog.Error("create contact failed", "err", err, "phone", in.Phone)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"contactId": in.ID})
}

func (a *API) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := a.Directory.ListContacts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contactsJSON(contacts))
}

func (a *API) handleGetContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, found, err := a.Directory.GetContact(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, contactJSON(c))
}

func (a *API) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req domain.CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	ok, err := a.Directory.UpdateContact(r.Context(), store.ContactInsert{
		ID:           id,
		Name:         req.Name,
		Phone:        util.NormalizePhone(req.Phone),
		Email:        req.Email,
		Tags:         req.Tags,
		CustomFields: req.CustomFields,
		Now:          util.NowUTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := a.Directory.DeleteContact(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- templates ---

func (a *API) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	in := store.TemplateInsert{
		ID:   util.NewTemplateID(),
		Name: req.Name,
		Body: req.Body,
		Now:  util.NowUTC(),
	}
	if err := a.Directory.InsertTemplate(r.Context(), in); err != nil {
		slog.Error("create template failed", "err", err, "name", in.Name)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"templateId": in.ID})
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := a.Directory.ListTemplates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templatesJSON(templates))
}

func (a *API) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, found, err := a.Directory.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, templateJSON(t))
}

func (a *API) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req domain.CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	ok, err := a.Directory.UpdateTemplate(r.Context(), store.TemplateInsert{
		ID:   id,
		Name: req.Name,
		Body: req.Body,
		Now:  util.NowUTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := a.Directory.DeleteTemplate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
