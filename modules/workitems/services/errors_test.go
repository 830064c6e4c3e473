package services_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drydock-pm/drydock/modules/workitems/services"
)

func TestAsServiceError(t *testing.T) {
	require.Nil(t, services.AsServiceError(nil))

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrProjectRequired, http.StatusBadRequest, "WORKITEM_PROJECT_REQUIRED"},
		{services.ErrInvalidCount, http.StatusBadRequest, "WORKITEM_INVALID_COUNT"},
		{fmt.Errorf("wrapped: %w", services.ErrBucketExhausted), http.StatusConflict, "WORKITEM_BUCKET_EXHAUSTED"},
		{services.ErrDuplicateID, http.StatusConflict, "WORKITEM_ID_CONFLICT"},
		{services.ErrIDNotFound, http.StatusNotFound, "WORKITEM_NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "WORKITEM_INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			got := services.AsServiceError(tc.err)
			require.Equal(t, tc.status, got.Status)
			require.Equal(t, tc.code, got.Code)
			require.ErrorIs(t, got, tc.err)
		})
	}
}
