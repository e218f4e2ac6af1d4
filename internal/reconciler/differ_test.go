package reconciler

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/twinsync-io/twinsync/internal/template"
	"github.com/twinsync-io/twinsync/internal/twin"
)

func inlineScript(code string) template.Code {
	return template.Code{JavaScript: template.Source{Content: code}}
}

func scriptSynthetic(code string) template.Synthetic {
	return template.Synthetic{JavaScript: &template.Source{Content: code}}
}

func testTemplate() *template.ThingTemplate {
	tmpl := &template.ThingTemplate{}
	tmpl.Synthetics.Set("temperature", scriptSynthetic("return state.temp;"))
	tmpl.Synthetics.Set("battery", template.Synthetic{Alias: "device.battery"})
	tmpl.Reconciliation.Changed.Set("validate", inlineScript("check();"))
	tmpl.Reconciliation.Deleting.Set("cleanup", inlineScript("teardown();"))
	tmpl.Reconciliation.Timers.Set("poll", template.TimerDef{
		Code:   inlineScript("poll();"),
		Period: twin.Duration(30 * time.Second),
	})
	return tmpl
}

func TestSyncTemplate_CreatesDefaults(t *testing.T) {
	tmpl := testTemplate()
	thing := twin.NewThing("factory-a", "dev-1/sensor")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	SyncTemplate(tmpl, thing, now)

	temp, ok := thing.SyntheticState["temperature"]
	if !ok {
		t.Fatal("temperature feature missing")
	}
	if temp.JavaScript != "return state.temp;" {
		t.Errorf("temperature script = %q", temp.JavaScript)
	}
	if temp.Value != nil {
		t.Errorf("fresh feature value = %s, want unset", temp.Value)
	}
	if !temp.LastUpdate.Equal(now) {
		t.Errorf("LastUpdate = %v, want %v", temp.LastUpdate, now)
	}

	battery := thing.SyntheticState["battery"]
	if battery.Alias != "device.battery" {
		t.Errorf("battery alias = %q", battery.Alias)
	}

	timer, ok := thing.Reconciliation.Timers.Get("poll")
	if !ok {
		t.Fatal("poll timer missing")
	}
	if timer.Period.Std() != 30*time.Second {
		t.Errorf("poll period = %v", timer.Period)
	}
	if timer.Stopped || timer.LastStarted != nil || timer.LastRun != nil {
		t.Errorf("fresh timer has runtime state: %+v", timer)
	}
}

func TestSyncTemplate_Stability(t *testing.T) {
	tmpl := testTemplate()
	thing := twin.NewThing("factory-a", "dev-1/sensor")

	SyncTemplate(tmpl, thing, time.Now())
	first, err := json.Marshal(thing)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// The second pass must change nothing, even with a later clock:
	// timestamps belong to entry creation only.
	SyncTemplate(tmpl, thing, time.Now().Add(time.Hour))
	second, err := json.Marshal(thing)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("second pass changed state:\n%s\n%s", first, second)
	}
}

func TestSyncTemplate_PreservesRuntimeFields(t *testing.T) {
	tmpl := testTemplate()
	thing := twin.NewThing("factory-a", "dev-1/sensor")

	started := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	thing.SyntheticState = map[string]twin.SyntheticFeature{
		"temperature": {
			SyntheticType: twin.SyntheticType{JavaScript: "old code"},
			Value:         json.RawMessage(`21.5`),
			LastUpdate:    started,
		},
	}
	thing.Reconciliation.Changed.Set("validate", twin.Changed{
		Code:    twin.Code{JavaScript: "old check"},
		LastLog: []string{"ran at 08:00"},
	})
	thing.Reconciliation.Timers.Set("poll", twin.Timer{
		Code:        twin.Code{JavaScript: "old poll"},
		Period:      twin.Duration(time.Minute),
		Stopped:     true,
		LastStarted: &started,
		LastLog:     []string{"tick"},
	})

	SyncTemplate(tmpl, thing, time.Now())

	temp := thing.SyntheticState["temperature"]
	if temp.JavaScript != "return state.temp;" {
		t.Errorf("temperature script not updated: %q", temp.JavaScript)
	}
	if string(temp.Value) != `21.5` {
		t.Errorf("cached value reset: %s", temp.Value)
	}
	if !temp.LastUpdate.Equal(started) {
		t.Errorf("LastUpdate reset: %v", temp.LastUpdate)
	}

	changed, _ := thing.Reconciliation.Changed.Get("validate")
	if changed.Code.JavaScript != "check();" {
		t.Errorf("changed handler code not updated: %q", changed.Code.JavaScript)
	}
	if !reflect.DeepEqual(changed.LastLog, []string{"ran at 08:00"}) {
		t.Errorf("changed handler log reset: %v", changed.LastLog)
	}

	timer, _ := thing.Reconciliation.Timers.Get("poll")
	if timer.Code.JavaScript != "poll();" || timer.Period.Std() != 30*time.Second {
		t.Errorf("timer definition not updated: %+v", timer)
	}
	if !timer.Stopped || timer.LastStarted == nil || !reflect.DeepEqual(timer.LastLog, []string{"tick"}) {
		t.Errorf("timer runtime fields reset: %+v", timer)
	}
}

func TestSyncTemplate_AddRemoveSymmetry(t *testing.T) {
	tmpl := testTemplate()
	thing := twin.NewThing("factory-a", "dev-1/sensor")
	SyncTemplate(tmpl, thing, time.Now())

	// Remember the untouched entry for byte comparison.
	tempBefore, err := json.Marshal(thing.SyntheticState["temperature"])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// Add a key to the template: a matching default entry appears.
	tmpl.Synthetics.Set("humidity", scriptSynthetic("return state.hum;"))
	SyncTemplate(tmpl, thing, time.Now())
	if _, ok := thing.SyntheticState["humidity"]; !ok {
		t.Error("added template key did not create an entry")
	}

	// Remove it again: exactly that entry disappears.
	tmpl.Synthetics.Delete("humidity")
	SyncTemplate(tmpl, thing, time.Now())
	if _, ok := thing.SyntheticState["humidity"]; ok {
		t.Error("removed template key left its entry behind")
	}

	tempAfter, err := json.Marshal(thing.SyntheticState["temperature"])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(tempBefore) != string(tempAfter) {
		t.Errorf("unrelated entry changed:\n%s\n%s", tempBefore, tempAfter)
	}
}

func TestSyncTemplate_OrderedFamiliesKeepPositions(t *testing.T) {
	tmpl := &template.ThingTemplate{}
	tmpl.Reconciliation.Changed.Set("first", inlineScript("1"))
	tmpl.Reconciliation.Changed.Set("second", inlineScript("2"))

	thing := twin.NewThing("factory-a", "dev-1/sensor")
	// Pre-existing entries in an order that differs from the template.
	thing.Reconciliation.Changed.Set("second", twin.Changed{Code: twin.Code{JavaScript: "old"}})
	thing.Reconciliation.Changed.Set("first", twin.Changed{Code: twin.Code{JavaScript: "old"}})

	// New template entries append after the pre-existing ones.
	tmpl.Reconciliation.Changed.Set("third", inlineScript("3"))

	SyncTemplate(tmpl, thing, time.Now())

	want := []string{"second", "first", "third"}
	if got := thing.Reconciliation.Changed.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestSyncTemplate_EmptyTemplateClearsDeclaredState(t *testing.T) {
	tmpl := &template.ThingTemplate{}
	thing := twin.NewThing("factory-a", "dev-1/sensor")
	thing.Reconciliation.Deleting.Set("cleanup", twin.Deleting{Code: twin.Code{JavaScript: "x"}})
	thing.SyntheticState = map[string]twin.SyntheticFeature{"temperature": {}}

	SyncTemplate(tmpl, thing, time.Now())

	if thing.Reconciliation.Deleting.Len() != 0 {
		t.Errorf("Deleting.Len() = %d, want 0", thing.Reconciliation.Deleting.Len())
	}
	if len(thing.SyntheticState) != 0 {
		t.Errorf("SyntheticState = %v, want empty", thing.SyntheticState)
	}
}
