package lifecycle

import (
	"testing"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

func TestPredicates_MatchTransitionTable(t *testing.T) {
	type row struct {
		status                                                          models.PurchaseOrderStatus
		submit, approve, send, receive, hold, resume, cancel, canFile bool
	}
	rows := []row{
		{models.PurchaseOrderStatusDraft, true, false, false, false, false, false, true, false},
		{models.PurchaseOrderStatusPendingApproval, false, true, false, false, false, false, true, false},
		{models.PurchaseOrderStatusApproved, false, false, true, false, false, false, true, false},
		{models.PurchaseOrderStatusSent, false, false, false, true, true, false, false, false},
		{models.PurchaseOrderStatusPartial, false, false, false, true, true, false, false, false},
		{models.PurchaseOrderStatusReceived, false, false, false, false, false, false, false, true},
		{models.PurchaseOrderStatusFiled, false, false, false, false, false, false, false, false},
		{models.PurchaseOrderStatusOnHold, false, false, false, false, false, true, false, false},
		{models.PurchaseOrderStatusCancelled, false, false, false, false, false, false, false, false},
	}

	for _, r := range rows {
		checks := []struct {
			name string
			got  bool
			want bool
		}{
			{"CanSubmit", CanSubmit(r.status), r.submit},
			{"CanApprove", CanApprove(r.status), r.approve},
			{"CanSend", CanSend(r.status), r.send},
			{"CanReceive", CanReceive(r.status), r.receive},
			{"CanHold", CanHold(r.status), r.hold},
			{"CanResume", CanResume(r.status), r.resume},
			{"CanCancel", CanCancel(r.status), r.cancel},
			{"CanFile", CanFile(r.status), r.canFile},
		}
		for _, c := range checks {
			if c.got != c.want {
				t.Fatalf("%s(%s) = %v, want %v", c.name, r.status, c.got, c.want)
			}
		}
	}
}

func TestAvailableActions_AgreesWithPredicates(t *testing.T) {
	predicateFor := map[Action]func(models.PurchaseOrderStatus) bool{
		ActionSubmit:  CanSubmit,
		ActionApprove: CanApprove,
		ActionSend:    CanSend,
		ActionReceive: CanReceive,
		ActionHold:    CanHold,
		ActionResume:  CanResume,
		ActionCancel:  CanCancel,
		ActionFile:    CanFile,
	}

	for _, status := range allStatuses() {
		available := map[Action]bool{}
		for _, action := range AvailableActions(status) {
			available[action] = true
		}
		for action, predicate := range predicateFor {
			if predicate(status) != available[action] {
				t.Fatalf("status %s: predicate and AvailableActions disagree on %s", status, action)
			}
		}
	}
}

func TestAvailableActions_TerminalStatusesHaveNone(t *testing.T) {
	for _, status := range allStatuses() {
		if !status.IsTerminal() {
			continue
		}
		if actions := AvailableActions(status); len(actions) != 0 {
			t.Fatalf("terminal status %s lists actions %v", status, actions)
		}
	}
}
