package controllers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/drydock-pm/drydock/pkg/constants"
)

const dateLayout = "2006-01-02"

type generateIDRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type generateBatchRequest struct {
	Count int    `json:"count" validate:"gte=0,lte=999"`
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type createWorkItemRequest struct {
	Title    string  `json:"title" validate:"required,max=500"`
	ParentID *string `json:"parent_id" validate:"omitempty,min=1"`
}

type importItemRequest struct {
	Title    string  `json:"title" validate:"required,max=500"`
	ParentID *string `json:"parent_id" validate:"omitempty,min=1"`
}

type importWorkItemsRequest struct {
	Items []importItemRequest `json:"items" validate:"required,min=1,max=999,dive"`
}

type migrateRequest struct {
	DryRun            *bool `json:"dry_run"`
	PreserveHierarchy *bool `json:"preserve_hierarchy"`
}

// options defaults to a dry run that preserves hierarchy.
func (r migrateRequest) options() (dryRun, preserveHierarchy bool) {
	dryRun, preserveHierarchy = true, true
	if r.DryRun != nil {
		dryRun = *r.DryRun
	}
	if r.PreserveHierarchy != nil {
		preserveHierarchy = *r.PreserveHierarchy
	}
	return dryRun, preserveHierarchy
}

// validate returns a field -> message map of struct tag violations.
func validate(dto any) map[string]string {
	err := constants.Validate.Struct(dto)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[jsonFieldPath(fe.Namespace())] = fmt.Sprintf("failed on %q", fe.Tag())
	}
	return out
}

// jsonFieldPath drops the struct name: "importWorkItemsRequest.items[0].title" -> "items[0].title".
func jsonFieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// parseDate interprets YYYY-MM-DD as a calendar day in loc. Empty means now.
func parseDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return time.Time{}, err
	}
	// noon keeps the reference inside the day regardless of DST shifts
	return t.Add(12 * time.Hour), nil
}
