package web_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/web"
)

func TestInstantiateInstanceRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New()

	tests := []struct {
		name    string
		request web.InstantiateInstanceRequest
		wantErr bool
	}{
		{
			name:    "valid",
			request: web.InstantiateInstanceRequest{TemplateID: "tpl-1", Actor: "alice"},
		},
		{
			name:    "missing template id",
			request: web.InstantiateInstanceRequest{Actor: "alice"},
			wantErr: true,
		},
		{
			name:    "missing actor",
			request: web.InstantiateInstanceRequest{TemplateID: "tpl-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVoteRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New()

	tests := []struct {
		name    string
		request web.VoteRequest
		wantErr bool
	}{
		{
			name:    "approved",
			request: web.VoteRequest{ApproverID: "bob", Status: models.ApprovalStatusApproved},
		},
		{
			name:    "rejected with comments",
			request: web.VoteRequest{StageID: "review", ApproverID: "bob", Status: models.ApprovalStatusRejected, Comments: "missing runbook"},
		},
		{
			name:    "unknown status",
			request: web.VoteRequest{ApproverID: "bob", Status: models.ApprovalStatus("maybe")},
			wantErr: true,
		},
		{
			name:    "missing approver",
			request: web.VoteRequest{Status: models.ApprovalStatusApproved},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubmitEventRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New()

	tests := []struct {
		name    string
		request web.SubmitEventRequest
		wantErr bool
	}{
		{
			name:    "stage enter",
			request: web.SubmitEventRequest{Type: models.TriggerStageEnter, StageID: "intake"},
		},
		{
			name:    "field change",
			request: web.SubmitEventRequest{Type: models.TriggerFieldChange, Field: "priority", OldValue: "low", NewValue: "high"},
		},
		{
			name:    "unknown type",
			request: web.SubmitEventRequest{Type: models.TriggerType("phase_shift")},
			wantErr: true,
		},
		{
			name:    "missing type",
			request: web.SubmitEventRequest{StageID: "intake"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
