package model

import "strings"

// TaskType names the category of analysis a batch is routed to.
type TaskType string

const (
	TaskPayroll          TaskType = "payroll"
	TaskHRIS             TaskType = "hris"
	TaskERP              TaskType = "erp"
	TaskCRM              TaskType = "crm"
	TaskCompliance       TaskType = "compliance"
	TaskAIInfrastructure TaskType = "ai_infrastructure"
)

// TaskTypes lists every known task type in display order.
var TaskTypes = []TaskType{
	TaskPayroll,
	TaskHRIS,
	TaskERP,
	TaskCRM,
	TaskCompliance,
	TaskAIInfrastructure,
}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	for _, k := range TaskTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ParseTaskType normalizes user input ("Payroll", "ai-infrastructure") into a
// TaskType. Unknown values are returned as-is so callers can report them; use
// Valid to check.
func ParseTaskType(s string) TaskType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return TaskType(s)
}

// identifyingKeys lists, per task type, the record keys that can identify a
// record. A record needs at least one of them with a non-empty value.
var identifyingKeys = map[TaskType][]string{
	TaskPayroll:          {"employeeId", "employee_id", "id"},
	TaskHRIS:             {"employeeId", "employee_id", "id"},
	TaskERP:              {"id", "transactionId", "transaction_id", "invoiceId", "invoice_id"},
	TaskCRM:              {"id", "contactId", "contact_id", "dealId", "deal_id", "accountId", "account_id"},
	TaskCompliance:       {"id", "recordId", "record_id", "controlId", "control_id"},
	TaskAIInfrastructure: {"id", "resourceId", "resource_id", "modelId", "model_id"},
}

// IdentifyingKeys returns the accepted identifying keys for t. Unknown task
// types fall back to a bare "id".
func (t TaskType) IdentifyingKeys() []string {
	if keys, ok := identifyingKeys[t]; ok {
		return keys
	}
	return []string{"id"}
}
