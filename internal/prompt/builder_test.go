package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/audit-cli/internal/model"
)

func payrollBatch(n int) model.Batch {
	batch := make(model.Batch, n)
	for i := range batch {
		batch[i] = model.Record{"employeeId": fmt.Sprintf("E%d", i+1), "hours": 40, "rate": 25, "grossPay": 1000}
	}
	return batch
}

func TestBuild_Payroll(t *testing.T) {
	b := NewBuilder(0)
	assert.Equal(t, DefaultSampleSize, b.SampleSize())

	p, err := b.Build(model.TaskPayroll, payrollBatch(3))
	require.NoError(t, err)

	assert.Equal(t, 3, p.SampledRecords)
	assert.Equal(t, 3, p.TotalRecords)
	assert.Contains(t, p.System, "payroll auditor")
	assert.Contains(t, p.System, "JSON")

	for _, check := range Checks(model.TaskPayroll) {
		assert.Contains(t, p.User, check)
	}
	assert.Contains(t, p.User, `"employeeId":"E1"`)
	assert.Contains(t, p.User, `"issuesFound"`)
	assert.Contains(t, p.User, `"confidence"`)
	assert.Contains(t, p.User, "employeeId or employee_id or id")
	assert.NotContains(t, p.User, "first 3 of")
}

func TestBuild_SamplesLeadingRecords(t *testing.T) {
	p, err := NewBuilder(50).Build(model.TaskPayroll, payrollBatch(120))
	require.NoError(t, err)

	assert.Equal(t, 50, p.SampledRecords)
	assert.Equal(t, 120, p.TotalRecords)
	assert.Contains(t, p.User, "(first 50 of 120)")
	assert.Contains(t, p.User, `"E50"`)
	assert.NotContains(t, p.User, `"E51"`)

	start := strings.Index(p.User, "Records (JSON):\n") + len("Records (JSON):\n")
	end := strings.Index(p.User, "\n\nRespond with")
	var embedded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(p.User[start:end]), &embedded))
	assert.Len(t, embedded, 50)
}

func TestBuild_EveryTaskTypeHasChecks(t *testing.T) {
	for _, tt := range model.TaskTypes {
		checks := Checks(tt)
		assert.NotEmpty(t, checks, tt)

		p, err := NewBuilder(10).Build(tt, model.Batch{{"id": "1"}})
		require.NoError(t, err, tt)
		assert.NotEmpty(t, p.System)
		assert.NotEqual(t, p.System, p.User)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder(10)
	batch := payrollBatch(5)
	p1, err := b.Build(model.TaskERP, batch)
	require.NoError(t, err)
	p2, err := b.Build(model.TaskERP, batch)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestBuild_UnknownTaskType(t *testing.T) {
	_, err := NewBuilder(0).Build("unknown_system", payrollBatch(1))
	assert.Error(t, err)
	assert.Nil(t, Checks("unknown_system"))
}
