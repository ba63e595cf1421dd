package insight

import (
	"time"

	"sentinel/internal/analysis/rootcause"
)

// Action priorities
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
)

// Action is one corrective recommendation
type Action struct {
	Priority        string   `json:"priority" yaml:"priority"`
	Action          string   `json:"action" yaml:"action"`
	Description     string   `json:"description" yaml:"description"`
	Steps           []string `json:"steps" yaml:"steps"`
	EstimatedImpact string   `json:"estimated_impact" yaml:"estimated_impact"`
}

// ActionPlan pairs a finding with its recommendations
type ActionPlan struct {
	Actions     []Action          `json:"actions" yaml:"actions"`
	RootCause   rootcause.Finding `json:"root_cause" yaml:"root_cause"`
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
}

var (
	equipmentMaintenance = Action{
		Priority:    PriorityHigh,
		Action:      "Equipment Maintenance",
		Description: "Perform preventive maintenance check on problematic equipment",
		Steps: []string{
			"Check equipment operating parameters",
			"Review maintenance history",
			"Perform calibration and adjustment",
			"Replace worn components",
		},
		EstimatedImpact: "Can reduce 30-50% of equipment-related defects",
	}
	scheduleAdjustment = Action{
		Priority:    PriorityMedium,
		Action:      "Adjust Production Schedule",
		Description: "Increase quality checks during peak issue periods",
		Steps: []string{
			"Increase inspection frequency during peak hours",
			"Assign experienced operators",
			"Add monitoring equipment",
			"Implement real-time alert system",
		},
		EstimatedImpact: "Can reduce 20-40% of time-related defects",
	}
	temperatureControl = Action{
		Priority:    PriorityHigh,
		Action:      "Temperature Control",
		Description: "Implement stricter temperature monitoring and control",
		Steps: []string{
			"Install temperature sensors and alarms",
			"Set temperature thresholds",
			"Optimize cooling system",
			"Train operators to identify temperature anomalies",
		},
		EstimatedImpact: "Can reduce 25-45% of temperature-related defects",
	}
	vibrationControl = Action{
		Priority:    PriorityHigh,
		Action:      "Vibration Control",
		Description: "Reduce equipment vibration",
		Steps: []string{
			"Check equipment balance",
			"Replace worn bearings",
			"Reinforce equipment foundation",
			"Implement vibration monitoring system",
		},
		EstimatedImpact: "Can reduce 20-35% of vibration-related defects",
	}
	dataCollection = Action{
		Priority:    PriorityMedium,
		Action:      "Data Collection and Analysis",
		Description: "Collect more data to identify root causes",
		Steps: []string{
			"Increase data collection frequency",
			"Record more relevant parameters",
			"Conduct detailed incident investigations",
			"Establish data-driven decision process",
		},
		EstimatedImpact: "Can improve root cause identification accuracy",
	}
)

// SuggestActions maps a finding to its playbook. Environmental findings get
// one action per recognised factor. Anything unmatched, operator findings
// included, falls back to data collection.
func (e *Engine) SuggestActions(finding rootcause.Finding) ActionPlan {
	var actions []Action
	switch finding.Type {
	case rootcause.FactorEquipment:
		actions = append(actions, clone(equipmentMaintenance))
	case rootcause.FactorTimePattern:
		actions = append(actions, clone(scheduleAdjustment))
	case rootcause.FactorEnvironmental:
		for _, ev := range finding.Findings {
			switch ev.Factor {
			case rootcause.FactorTemperature:
				actions = append(actions, clone(temperatureControl))
			case rootcause.FactorVibration:
				actions = append(actions, clone(vibrationControl))
			}
		}
	}
	if len(actions) == 0 {
		actions = append(actions, clone(dataCollection))
	}
	return ActionPlan{Actions: actions, RootCause: finding, GeneratedAt: e.now()}
}

// clone keeps callers from mutating the shared playbook steps
func clone(a Action) Action {
	a.Steps = append([]string(nil), a.Steps...)
	return a
}
