package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowTemplate_Validation(t *testing.T) {
	validate := validator.New()

	template := &WorkflowTemplate{
		ID:             "tpl-1",
		OrganizationID: "org-1",
		Name:           "Vendor Intake",
		Type:           TemplateTypeIntake,
		Stages: []*Stage{
			{ID: "intake", Name: "Intake", Type: StageTypeIntake},
		},
	}
	assert.NoError(t, validate.Struct(template))

	template.Type = "mystery"
	assert.Error(t, validate.Struct(template))

	template.Type = TemplateTypeIntake
	template.Stages = nil
	assert.Error(t, validate.Struct(template))
}

func TestInstanceStatus_Terminal(t *testing.T) {
	assert.True(t, InstanceStatusCompleted.Terminal())
	assert.True(t, InstanceStatusCancelled.Terminal())
	assert.True(t, InstanceStatusFailed.Terminal())
	assert.False(t, InstanceStatusActive.Terminal())
	assert.False(t, InstanceStatusOnHold.Terminal())
}

func TestWorkflowInstance_OpenHistoryIndex(t *testing.T) {
	now := time.Now().UTC()
	exited := now.Add(time.Hour)

	instance := &WorkflowInstance{
		Status: InstanceStatusActive,
		StageHistory: []StageHistoryEntry{
			{StageID: "intake", EnteredAt: now, ExitedAt: &exited},
			{StageID: "review", EnteredAt: exited},
		},
	}

	require.Equal(t, 1, instance.OpenHistoryIndex())

	enteredAt, ok := instance.StageEnteredAt()
	require.True(t, ok)
	assert.Equal(t, exited, enteredAt)
}

func TestWorkflowInstance_LatestVotes_SkipsSuperseded(t *testing.T) {
	instance := &WorkflowInstance{
		Approvals: []Approval{
			{StageID: "gate", ApproverID: "bob", Status: ApprovalStatusRejected, Superseded: true},
			{StageID: "gate", ApproverID: "bob", Status: ApprovalStatusApproved},
			{StageID: "other", ApproverID: "ann", Status: ApprovalStatusApproved},
		},
	}

	votes := instance.LatestVotes("gate")
	require.Len(t, votes, 1)
	assert.Equal(t, ApprovalStatusApproved, votes["bob"].Status)
}

func TestWorkflowInstance_Clone_Independence(t *testing.T) {
	original := &WorkflowInstance{
		ID:     "inst-1",
		Status: InstanceStatusActive,
		StageHistory: []StageHistoryEntry{
			{StageID: "intake", EnteredAt: time.Now().UTC()},
		},
		Data: InstanceData{FormData: map[string]any{"budget": 100}},
	}

	clone := original.Clone()
	clone.StageHistory[0].StageID = "mutated"
	clone.Data.FormData["budget"] = 999

	assert.Equal(t, "intake", original.StageHistory[0].StageID)
	assert.Equal(t, 100, original.Data.FormData["budget"])
}

func TestInstanceData_Field_PrefersFormData(t *testing.T) {
	data := InstanceData{
		FormData:     map[string]any{"owner": "ops"},
		CustomFields: map[string]any{"owner": "shadow", "region": "emea"},
	}

	v, ok := data.Field("owner")
	require.True(t, ok)
	assert.Equal(t, "ops", v)

	v, ok = data.Field("region")
	require.True(t, ok)
	assert.Equal(t, "emea", v)

	_, ok = data.Field("missing")
	assert.False(t, ok)
}
