package prompt

import "github.com/sells-group/audit-cli/internal/model"

// taskProfile is the analyst persona and check list for one task type.
type taskProfile struct {
	label   string
	persona string
	checks  []string
}

var profiles = map[model.TaskType]taskProfile{
	model.TaskPayroll: {
		label:   "payroll",
		persona: "a senior payroll auditor with deep knowledge of US wage and hour law",
		checks: []string{
			"Overpayment: gross pay above hours x rate plus documented premiums",
			"Underpayment or overtime miscalculation: hours over 40 per week not paid at 1.5x",
			"Tax withholding error: federal, state or FICA withholding inconsistent with gross pay",
			"Compliance gap: pay below federal or state minimum wage, FLSA exemption misclassification",
			"Anomalous net/gross ratio: net pay outside 55-90% of gross without explanation",
			"Duplicate payment: same employee and pay period paid more than once",
		},
	},
	model.TaskHRIS: {
		label:   "HRIS",
		persona: "an HR systems auditor responsible for employee master data quality",
		checks: []string{
			"Missing or malformed required employee fields (name, hire date, status, department)",
			"Terminated employees still marked active or still on payroll",
			"Inconsistent job title, department or manager assignments",
			"Compensation outside the band for the role or level",
			"PTO or leave balances that are negative or exceed policy caps",
			"Duplicate employee records",
		},
	},
	model.TaskERP: {
		label:   "ERP",
		persona: "a financial controls auditor reviewing ERP transactions",
		checks: []string{
			"Duplicate invoices or transactions",
			"Amount mismatches between purchase order, receipt and invoice",
			"Transactions coded to the wrong GL account or cost center",
			"Missing or out-of-policy approvals",
			"Unusual vendor payment patterns (round amounts, split payments, new vendors)",
			"Period cutoff errors: transactions booked in the wrong period",
		},
	},
	model.TaskCRM: {
		label:   "CRM",
		persona: "a revenue operations analyst auditing CRM data hygiene",
		checks: []string{
			"Duplicate contacts, accounts or deals",
			"Missing or malformed contact data (email, phone, company)",
			"Stale deals or pipeline stages inconsistent with activity dates",
			"Deal amounts or close dates that are anomalous for the stage",
			"Records with no owner or an inactive owner",
		},
	},
	model.TaskCompliance: {
		label:   "compliance",
		persona: "a compliance auditor experienced with SOC 2, GDPR and HIPAA controls",
		checks: []string{
			"Controls with missing or outdated evidence",
			"Expired certifications, access reviews or policy attestations",
			"Segregation-of-duties conflicts",
			"Policy exceptions without documented approval",
			"Regulatory reporting or data retention gaps",
		},
	},
	model.TaskAIInfrastructure: {
		label:   "AI infrastructure",
		persona: "a cloud and ML platform auditor focused on cost, governance and security",
		checks: []string{
			"Idle or over-provisioned GPU and compute resources",
			"Cost anomalies relative to utilization",
			"Models without an owner, version or evaluation record",
			"Security misconfiguration: public endpoints, unrotated keys, broad IAM roles",
			"Training or inference data retained beyond policy",
		},
	},
}

// Checks returns the check list for taskType, or nil when it has none.
func Checks(taskType model.TaskType) []string {
	p, ok := profiles[taskType]
	if !ok {
		return nil
	}
	out := make([]string, len(p.checks))
	copy(out, p.checks)
	return out
}
