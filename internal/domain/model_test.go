package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestTaskTransitions(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	task := CandidateTask{State: TaskProcessing, LookupStatus: LookupUnknown}
	task.Finish(LookupNoIP, now)
	if task.State != TaskDone || task.LookupStatus != LookupNoIP {
		t.Fatalf("unexpected state after Finish: %s/%s", task.State, task.LookupStatus)
	}
	if task.ProcessedAt == nil || !task.ProcessedAt.Equal(now) {
		t.Fatalf("ProcessedAt not set on finish")
	}

	failed := CandidateTask{State: TaskProcessing}
	failed.Fail("boom", now)
	if failed.State != TaskError || failed.Error != "boom" || failed.ProcessedAt == nil {
		t.Fatalf("unexpected failed task: %+v", failed)
	}
}

func TestTerminal(t *testing.T) {
	tests := map[TaskState]bool{
		TaskPending:    false,
		TaskProcessing: false,
		TaskDone:       true,
		TaskError:      true,
	}
	for state, want := range tests {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestASSignatureFields(t *testing.T) {
	sig := ASSignature{ASN: "AS13335", ASDomain: " Cloudflare.com ", ASName: ""}
	want := []string{"as13335", "cloudflare.com"}
	if got := sig.Fields(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Fields() = %v, want %v", got, want)
	}
	if got := (ASSignature{}).Fields(); len(got) != 0 {
		t.Fatalf("empty signature should have no fields, got %v", got)
	}
}
