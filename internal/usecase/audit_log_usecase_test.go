package usecase_test

import (
	"net/http"
	"testing"

	"shopapi/internal/domain/model"
	repo "shopapi/internal/repository"
	"shopapi/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAuditLogList_Filters(t *testing.T) {
	audit := new(AuditRepoMock)
	uc := usecase.NewAuditLogUsecase(audit)

	action := model.AuditActionUpdateOrderStatus
	rt := model.AuditResourceOrder
	id := int64(5)
	audit.On("List", mock.Anything, repo.AuditLogFilter{
		Action:       &action,
		ResourceType: &rt,
		ResourceID:   &id,
		Limit:        10,
	}).Return(nil, nil).Once()

	logs, err := uc.List(ctx(), usecase.ListAuditLogsInput{
		Action:       " update_order_status",
		ResourceType: "ORDER",
		ResourceID:   &id,
		Limit:        10,
	})
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
	audit.AssertExpectations(t)
}

func TestAuditLogList_Validation(t *testing.T) {
	uc := usecase.NewAuditLogUsecase(new(AuditRepoMock))

	_, err := uc.List(ctx(), usecase.ListAuditLogsInput{Action: "DROP_TABLE"})
	assertHTTPError(t, err, http.StatusBadRequest, "invalid action")

	_, err = uc.List(ctx(), usecase.ListAuditLogsInput{ResourceType: "user"})
	assertHTTPError(t, err, http.StatusBadRequest, "invalid resource_type")

	_, err = uc.List(ctx(), usecase.ListAuditLogsInput{Limit: 500})
	assertHTTPError(t, err, http.StatusBadRequest, "invalid limit")
}
