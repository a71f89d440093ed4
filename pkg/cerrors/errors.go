package cerrors

import "fmt"

type Generic struct {
	Phase  string
	Reason string
}

func (e Generic) Error() string {
	if e.Phase == "" {
		return e.Reason
	}
	return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
}

func (e Generic) UserFriendly() bool {
	return true
}

func (e Generic) ErrorType() ErrorType {
	return ErrorTypeGeneric
}

// TargetSelection covers the resolve-target step: unknown names and
// ambiguous name matches are both selection failures, distinguished by
// the NotFound/Ambiguous markers.
type TargetSelection struct {
	Target    string
	Reason    string
	NotFound  bool
	Ambiguous bool
}

func (e TargetSelection) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("target selection failed, %s", e.Reason)
	}
	return fmt.Sprintf("target '%s' selection failed, %s", e.Target, e.Reason)
}

func (e TargetSelection) UserFriendly() bool {
	return true
}

func (e TargetSelection) ErrorType() ErrorType {
	return ErrorTypeTargetSelection
}

type FaultInjection struct {
	Target string
	Kind   string
	Reason string
}

func (e FaultInjection) Error() string {
	return fmt.Sprintf("failed to inject %s fault on target '%s', %s", e.Kind, e.Target, e.Reason)
}

func (e FaultInjection) UserFriendly() bool {
	return true
}

func (e FaultInjection) ErrorType() ErrorType {
	return ErrorTypeFaultInjection
}

type MetricsQuery struct {
	Query  string
	Reason string
}

func (e MetricsQuery) Error() string {
	return fmt.Sprintf("metrics query failed, %s", e.Reason)
}

func (e MetricsQuery) UserFriendly() bool {
	return true
}

func (e MetricsQuery) ErrorType() ErrorType {
	return ErrorTypeMetricsQuery
}

type Recovery struct {
	Target string
	Reason string
}

func (e Recovery) Error() string {
	return fmt.Sprintf("failed to recover target '%s', %s", e.Target, e.Reason)
}

func (e Recovery) UserFriendly() bool {
	return true
}

func (e Recovery) ErrorType() ErrorType {
	return ErrorTypeRecovery
}

// ExperimentCRUD covers loading and listing stored experiment definitions.
type ExperimentCRUD struct {
	Name      string
	Operation string
	Reason    string
	NotFound  bool
}

func (e ExperimentCRUD) Error() string {
	return fmt.Sprintf("failed to %s experiment '%s', %s", e.Operation, e.Name, e.Reason)
}

func (e ExperimentCRUD) UserFriendly() bool {
	return true
}

func (e ExperimentCRUD) ErrorType() ErrorType {
	return ErrorTypeExperimentCRUD
}

type Configuration struct {
	Field  string
	Reason string
}

func (e Configuration) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid experiment definition, %s", e.Reason)
	}
	return fmt.Sprintf("invalid experiment definition, field '%s': %s", e.Field, e.Reason)
}

func (e Configuration) UserFriendly() bool {
	return true
}

func (e Configuration) ErrorType() ErrorType {
	return ErrorTypeConfiguration
}
