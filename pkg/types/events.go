package types

import "encoding/json"

// decodeData converts an event payload into the typed form. The payload
// is a typed struct when the event was just built by the worker, and a
// generic map after a JSON round trip; re-marshaling covers both.
func decodeData(data any, out any) bool {
	if data == nil {
		return false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	return true
}

// AssignedData returns the payload of an assigned/unassigned event
func (e *IssueEvent) AssignedData() (IssueEventAssignedUnassigned, bool) {
	var out IssueEventAssignedUnassigned
	if e.Type != EventAssigned && e.Type != EventUnassigned {
		return out, false
	}
	return out, decodeData(e.Data, &out)
}

// LabeledData returns the payload of a labeled/unlabeled event
func (e *IssueEvent) LabeledData() (IssueEventLabeledUnlabeled, bool) {
	var out IssueEventLabeledUnlabeled
	if e.Type != EventLabeled && e.Type != EventUnlabeled {
		return out, false
	}
	return out, decodeData(e.Data, &out)
}

// RenamedData returns the payload of a renamed event
func (e *IssueEvent) RenamedData() (IssueEventRenamed, bool) {
	var out IssueEventRenamed
	if e.Type != EventRenamed {
		return out, false
	}
	return out, decodeData(e.Data, &out)
}
