package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/drydock-pm/drydock/modules/workitems/domain/workitemid"
	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/composables"
	"github.com/drydock-pm/drydock/pkg/httpapi"
)

type WorkItemIDsController struct {
	alloc     *services.Allocator
	items     *services.WorkItemService
	apiPrefix string
}

func NewWorkItemIDsController(alloc *services.Allocator, items *services.WorkItemService) *WorkItemIDsController {
	return &WorkItemIDsController{
		alloc:     alloc,
		items:     items,
		apiPrefix: "/api",
	}
}

func (c *WorkItemIDsController) Key() string {
	return c.apiPrefix + "/work-item-ids"
}

func (c *WorkItemIDsController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/projects/{projectID}/work-item-ids", c.GenerateID).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectID}/work-item-ids:batch", c.GenerateBatch).Methods(http.MethodPost)
	api.HandleFunc("/work-item-ids/{id:.+}:parse", c.ParseID).Methods(http.MethodGet)

	api.HandleFunc("/projects/{projectID}/work-items", c.CreateWorkItem).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectID}/work-items:import", c.ImportWorkItems).Methods(http.MethodPost)
}

func (c *WorkItemIDsController) GenerateID(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	projectID := mux.Vars(r)["projectID"]

	var req generateIDRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}
	ref, err := parseDate(req.Date, c.alloc.Location())
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "WORKITEM_INVALID_BODY", "date must be YYYY-MM-DD")
		return
	}

	id, err := c.alloc.GenerateOne(r.Context(), projectID, ref)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	type generateIDResponse struct {
		ID          string `json:"id"`
		IsNewFormat bool   `json:"is_new_format"`
	}
	writeJSON(w, http.StatusOK, generateIDResponse{ID: id, IsNewFormat: workitemid.IsNewFormat(id)})
}

func (c *WorkItemIDsController) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	projectID := mux.Vars(r)["projectID"]

	var req generateBatchRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}
	ref, err := parseDate(req.Date, c.alloc.Location())
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "WORKITEM_INVALID_BODY", "date must be YYYY-MM-DD")
		return
	}

	ids, err := c.alloc.GenerateBatch(r.Context(), projectID, req.Count, ref)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	type generateBatchResponse struct {
		IDs []string `json:"ids"`
	}
	writeJSON(w, http.StatusOK, generateBatchResponse{IDs: ids})
}

func (c *WorkItemIDsController) ParseID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	type parseIDResponse struct {
		ID          string               `json:"id"`
		IsNewFormat bool                 `json:"is_new_format"`
		Parsed      *workitemid.ParsedID `json:"parsed"`
	}
	resp := parseIDResponse{ID: id}
	if parsed, ok := workitemid.Parse(id); ok {
		resp.IsNewFormat = true
		resp.Parsed = &parsed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *WorkItemIDsController) CreateWorkItem(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	projectID := mux.Vars(r)["projectID"]

	var req createWorkItemRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}

	rec, err := c.items.Create(r.Context(), services.CreateWorkItemInput{
		ProjectID: projectID,
		Title:     req.Title,
		ParentID:  req.ParentID,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (c *WorkItemIDsController) ImportWorkItems(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	projectID := mux.Vars(r)["projectID"]

	var req importWorkItemsRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}

	in := make([]services.ImportWorkItem, 0, len(req.Items))
	for _, it := range req.Items {
		in = append(in, services.ImportWorkItem{Title: it.Title, ParentID: it.ParentID})
	}
	recs, err := c.items.Import(r.Context(), projectID, in)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	type importResponse struct {
		Items []services.WorkItemRecord `json:"items"`
	}
	writeJSON(w, http.StatusCreated, importResponse{Items: recs})
}

// decodeAndValidate reads an optional JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, requestID string, dst any) bool {
	if r.Body != nil {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			writeAPIError(w, http.StatusBadRequest, requestID, "WORKITEM_INVALID_BODY", "invalid json body")
			return false
		}
	}
	if fields := validate(dst); len(fields) > 0 {
		meta := map[string]string{}
		if requestID != "" {
			meta["request_id"] = requestID
		}
		for k, v := range fields {
			meta[k] = v
		}
		writeJSON(w, http.StatusBadRequest, httpapi.ErrorEnvelope{
			Code:    "WORKITEM_VALIDATION_FAILED",
			Message: "request validation failed: " + strings.Join(sortedKeys(fields), ", "),
			Meta:    meta,
		})
		return false
	}
	return true
}
