package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/composables"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WorkItemIDsAdminController exposes the legacy id migration pipeline to operators.
type WorkItemIDsAdminController struct {
	migrator  *services.Migrator
	backupDir string
	prefix    string

	// one commit at a time per process
	migrating sync.Mutex
}

func NewWorkItemIDsAdminController(migrator *services.Migrator, backupDir string) *WorkItemIDsAdminController {
	return &WorkItemIDsAdminController{
		migrator:  migrator,
		backupDir: backupDir,
		prefix:    "/admin/work-item-ids",
	}
}

func (c *WorkItemIDsAdminController) Key() string {
	return c.prefix
}

func (c *WorkItemIDsAdminController) Register(r *mux.Router) {
	admin := r.PathPrefix(c.prefix).Subrouter()

	admin.HandleFunc("/analysis", c.Analyze).Methods(http.MethodGet)
	admin.HandleFunc("/recommendations", c.Recommendations).Methods(http.MethodGet)
	admin.HandleFunc("/backup", c.Backup).Methods(http.MethodPost)
	admin.HandleFunc("/migrate", c.Migrate).Methods(http.MethodPost)
	admin.HandleFunc("/validation", c.Validate).Methods(http.MethodGet)
	admin.HandleFunc("/dry-run.xlsx", c.DryRunReport).Methods(http.MethodGet)
}

func (c *WorkItemIDsAdminController) Analyze(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	analysis, err := c.migrator.Analyze(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (c *WorkItemIDsAdminController) Recommendations(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	rec, err := c.migrator.GetMigrationRecommendations(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (c *WorkItemIDsAdminController) Backup(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	path, backup, err := c.migrator.CreateBackup(r.Context(), c.backupDir)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	type backupResponse struct {
		Path       string `json:"path"`
		TotalItems int    `json:"total_items"`
	}
	writeJSON(w, http.StatusCreated, backupResponse{Path: path, TotalItems: backup.TotalItems})
}

func (c *WorkItemIDsAdminController) Migrate(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())

	var req migrateRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}
	dryRun, preserveHierarchy := req.options()

	if !dryRun {
		if !c.migrating.TryLock() {
			writeAPIError(w, http.StatusConflict, requestID, "WORKITEM_MIGRATION_RUNNING", "a migration is already running")
			return
		}
		defer c.migrating.Unlock()
	}

	res, err := c.migrator.MigrateToNewFormat(r.Context(), services.MigrateOptions{
		DryRun:            dryRun,
		PreserveHierarchy: preserveHierarchy,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (c *WorkItemIDsAdminController) Validate(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	res, err := c.migrator.ValidateMigration(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *WorkItemIDsAdminController) DryRunReport(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	res, err := c.migrator.MigrateToNewFormat(r.Context(), services.MigrateOptions{DryRun: true, PreserveHierarchy: true})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	var buf bytes.Buffer
	if err := services.WriteMigrationReport(&buf, res); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "work-item-ids-dry-run.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
