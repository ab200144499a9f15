package engine

import (
	"reflect"
	"testing"

	"github.com/qualtrack/qualtrack/pkg/model"
)

func sourceWithEntities(entities ...*model.Entity) *model.SourceResult {
	return &model.SourceResult{SourceUUID: "source-1", Entities: entities}
}

func TestCopyEntityUserData_KeepsSurvivingKey(t *testing.T) {
	old := sourceWithEntities(&model.Entity{Key: "a"})
	old.EntityUserData = map[string]map[string]any{"a": {"note": "x"}}
	fresh := sourceWithEntities(&model.Entity{Key: "a"})

	copyEntityUserData([]*model.SourceResult{old}, []*model.SourceResult{fresh})

	want := map[string]map[string]any{"a": {"note": "x"}}
	if !reflect.DeepEqual(fresh.EntityUserData, want) {
		t.Errorf("entity user data: got %v, want %v", fresh.EntityUserData, want)
	}
}

func TestCopyEntityUserData_RenamedKey(t *testing.T) {
	old := sourceWithEntities(&model.Entity{Key: "A"})
	old.EntityUserData = map[string]map[string]any{"A": {"note": "x"}}
	fresh := sourceWithEntities(&model.Entity{Key: "B", OldKey: "A"})

	copyEntityUserData([]*model.SourceResult{old}, []*model.SourceResult{fresh})

	want := map[string]map[string]any{"B": {"note": "x"}}
	if !reflect.DeepEqual(fresh.EntityUserData, want) {
		t.Errorf("entity user data: got %v, want %v", fresh.EntityUserData, want)
	}
	if _, ok := fresh.EntityUserData["A"]; ok {
		t.Error("annotations must move to the new key, not stay at the old one")
	}
}

func TestCopyEntityUserData_VanishedEntityDropsAnnotation(t *testing.T) {
	old := sourceWithEntities(&model.Entity{Key: "A"})
	old.EntityUserData = map[string]map[string]any{"A": {"note": "x"}}
	fresh := sourceWithEntities(&model.Entity{Key: "B"}) // no old_key pointing at A

	copyEntityUserData([]*model.SourceResult{old}, []*model.SourceResult{fresh})

	if fresh.EntityUserData != nil {
		t.Errorf("entity user data: got %v, want none", fresh.EntityUserData)
	}
}

func TestCopyEntityUserData_Idempotent(t *testing.T) {
	old := sourceWithEntities(&model.Entity{Key: "A"})
	old.EntityUserData = map[string]map[string]any{"A": {"note": "x"}}
	fresh := sourceWithEntities(&model.Entity{Key: "B", OldKey: "A"})

	copyEntityUserData([]*model.SourceResult{old}, []*model.SourceResult{fresh})
	first := fresh.EntityUserData

	copyEntityUserData([]*model.SourceResult{old}, []*model.SourceResult{fresh})
	if !reflect.DeepEqual(fresh.EntityUserData, first) {
		t.Errorf("second migration changed data: got %v, want %v", fresh.EntityUserData, first)
	}
}

func TestCopyEntityUserData_PairsSourcesPositionally(t *testing.T) {
	old1 := sourceWithEntities(&model.Entity{Key: "a"})
	old1.EntityUserData = map[string]map[string]any{"a": {"note": "first"}}
	old2 := sourceWithEntities(&model.Entity{Key: "a"})
	old2.EntityUserData = map[string]map[string]any{"a": {"note": "second"}}

	fresh1 := sourceWithEntities(&model.Entity{Key: "a"})
	fresh2 := sourceWithEntities(&model.Entity{Key: "a"})

	copyEntityUserData(
		[]*model.SourceResult{old1, old2},
		[]*model.SourceResult{fresh1, fresh2},
	)

	if fresh1.EntityUserData["a"]["note"] != "first" {
		t.Errorf("first source: got %v", fresh1.EntityUserData)
	}
	if fresh2.EntityUserData["a"]["note"] != "second" {
		t.Errorf("second source: got %v", fresh2.EntityUserData)
	}
}

func TestCopyEntityUserData_MismatchedSourceCounts(t *testing.T) {
	old := sourceWithEntities(&model.Entity{Key: "a"})
	old.EntityUserData = map[string]map[string]any{"a": {"note": "x"}}

	// More baseline sources than incoming: the extra baseline is ignored.
	copyEntityUserData([]*model.SourceResult{old, old}, []*model.SourceResult{sourceWithEntities(&model.Entity{Key: "a"})})

	// More incoming than baseline: the extra incoming source is untouched.
	extra := sourceWithEntities(&model.Entity{Key: "a"})
	copyEntityUserData([]*model.SourceResult{old}, []*model.SourceResult{sourceWithEntities(&model.Entity{Key: "a"}), extra})
	if extra.EntityUserData != nil {
		t.Errorf("unpaired incoming source gained data: %v", extra.EntityUserData)
	}
}
