package plan //nolint:testpackage // internal test needs access to unexported types

import (
	"testing"

	"loom/pkg/tracker"
)

func item(id string, order int, parallel bool, group string) WorkItem {
	return WorkItem{
		ID:             id,
		Type:           tracker.TypeTask,
		Title:          "title " + id,
		ExecutionOrder: order,
		CanParallelize: parallel,
		ParallelGroup:  group,
	}
}

func TestBuildPhases_SequentialAndParallelMix(t *testing.T) {
	t.Parallel()

	// A alone, then B and C as one parallel group, then D alone.
	items := []WorkItem{
		item("A", 1, false, ""),
		item("B", 2, true, "backend"),
		item("C", 2, true, "backend"),
		item("D", 3, false, ""),
	}

	phases := BuildPhases(items)
	if len(phases) != 3 {
		t.Fatalf("got %d phases, want 3", len(phases))
	}

	if phases[0].Order != 1 || phases[0].CanRunInParallel || len(phases[0].Items) != 1 || phases[0].Items[0].ID != "A" {
		t.Errorf("phase 0 = %+v, want sequential [A]", phases[0])
	}
	if phases[1].Order != 2 || !phases[1].CanRunInParallel || len(phases[1].Items) != 2 {
		t.Errorf("phase 1 = %+v, want parallel [B C]", phases[1])
	}
	if phases[2].Order != 3 || phases[2].CanRunInParallel || phases[2].Items[0].ID != "D" {
		t.Errorf("phase 2 = %+v, want sequential [D]", phases[2])
	}
}

func TestBuildPhases_SortsByExecutionOrder(t *testing.T) {
	t.Parallel()

	items := []WorkItem{
		item("C", 3, false, ""),
		item("A", 1, false, ""),
		item("B", 2, false, ""),
	}
	phases := BuildPhases(items)
	got := []string{phases[0].Items[0].ID, phases[1].Items[0].ID, phases[2].Items[0].ID}
	if got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("phase order = %v, want [A B C]", got)
	}
}

func TestBuildPhases_TiesKeepInputOrder(t *testing.T) {
	t.Parallel()

	items := []WorkItem{
		item("X", 1, false, ""),
		item("Y", 1, false, ""),
	}
	phases := BuildPhases(items)
	if len(phases) != 2 || phases[0].Items[0].ID != "X" || phases[1].Items[0].ID != "Y" {
		t.Errorf("phases = %+v, want stable [X] [Y]", phases)
	}
}

func TestBuildPhases_SameGroupDifferentOrderSplits(t *testing.T) {
	t.Parallel()

	// The same group name at different orders must not merge.
	items := []WorkItem{
		item("A", 1, true, "g"),
		item("B", 2, true, "g"),
	}
	phases := BuildPhases(items)
	if len(phases) != 2 {
		t.Fatalf("got %d phases, want 2 (group does not span orders)", len(phases))
	}
}

func TestBuildPhases_SingleItemGroupIsSequential(t *testing.T) {
	t.Parallel()

	phases := BuildPhases([]WorkItem{item("A", 1, true, "solo")})
	if len(phases) != 1 {
		t.Fatalf("got %d phases, want 1", len(phases))
	}
	if phases[0].CanRunInParallel {
		t.Error("a group of one must run sequentially")
	}
}

func TestBuildPhases_NonParallelizableItemIgnoresGroup(t *testing.T) {
	t.Parallel()

	// Same order and group, but B opts out of parallelism.
	items := []WorkItem{
		item("A", 1, true, "g"),
		item("B", 1, false, "g"),
		item("C", 1, true, "g"),
	}
	phases := BuildPhases(items)
	if len(phases) != 2 {
		t.Fatalf("got %d phases, want 2 (A+C grouped, B alone)", len(phases))
	}
	if len(phases[0].Items) != 2 || !phases[0].CanRunInParallel {
		t.Errorf("phase 0 = %+v, want parallel [A C]", phases[0])
	}
	if phases[1].Items[0].ID != "B" || phases[1].CanRunInParallel {
		t.Errorf("phase 1 = %+v, want sequential [B]", phases[1])
	}
}

func TestBuildPhases_Empty(t *testing.T) {
	t.Parallel()

	if phases := BuildPhases(nil); len(phases) != 0 {
		t.Errorf("BuildPhases(nil) = %v, want empty", phases)
	}
}

func TestValidateDependencies(t *testing.T) {
	t.Parallel()

	items := []WorkItem{
		item("A", 1, false, ""),
		item("B", 2, false, ""),
		item("C", 2, false, ""),
	}
	items[1].Dependencies = []string{"A"}      // fine: earlier order
	items[2].Dependencies = []string{"B", "Z"} // same order + unknown

	warnings := ValidateDependencies(items)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2", warnings)
	}
}

func TestValidateDependencies_CleanPlan(t *testing.T) {
	t.Parallel()

	items := []WorkItem{item("A", 1, false, ""), item("B", 2, false, "")}
	items[1].Dependencies = []string{"A"}
	if warnings := ValidateDependencies(items); len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

func TestFromPlanItems(t *testing.T) {
	t.Parallel()

	in := []tracker.PlanItem{{
		ID:             "f-1",
		Type:           tracker.TypeFeature,
		Title:          "login",
		Prompt:         "build login",
		Model:          "haiku",
		ExecutionOrder: 2,
		CanParallelize: true,
		ParallelGroup:  "auth",
		Dependencies:   []string{"f-0"},
	}}
	out := FromPlanItems(in)
	if len(out) != 1 {
		t.Fatalf("got %d items, want 1", len(out))
	}
	got := out[0]
	if got.ID != "f-1" || got.Type != tracker.TypeFeature || got.Prompt != "build login" ||
		got.Model != "haiku" || got.ExecutionOrder != 2 || !got.CanParallelize ||
		got.ParallelGroup != "auth" || len(got.Dependencies) != 1 {
		t.Errorf("converted item = %+v, want all fields carried", got)
	}
}
