package selector

import (
	"strings"
	"testing"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
)

const saveSelector = `
<Selector>
  <Window title="Settings" class="SettingsFrame"/>
  <Element automationId="btn_save_100" controlType="Button"/>
</Selector>`

func TestParseRoundTrip(t *testing.T) {
	sel, err := Parse(saveSelector)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if sel.Window == nil || sel.Window.Title != "Settings" {
		t.Errorf("unexpected window: %+v", sel.Window)
	}
	if len(sel.Elements) != 1 || sel.Target().AutomationID != "btn_save_100" {
		t.Errorf("unexpected elements: %+v", sel.Elements)
	}

	again, err := Parse(sel.String())
	if err != nil {
		t.Fatalf("reparse error: %v", err)
	}
	if again.Target().AutomationID != sel.Target().AutomationID ||
		again.Window.Title != sel.Window.Title {
		t.Error("round trip changed the selector")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not xml", "press the save button"},
		{"no steps", "<Selector><Window title='x'/></Selector>"},
		{"unconstrained step", "<Selector><Element/></Selector>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if core.KindOf(err) != core.KindParse {
				t.Errorf("error kind = %v, want parse", core.KindOf(err))
			}
		})
	}
}

func TestReplaceAutomationID(t *testing.T) {
	out, err := ReplaceAutomationID(saveSelector, "btn_save_105")
	if err != nil {
		t.Fatalf("ReplaceAutomationID() error: %v", err)
	}
	if !strings.Contains(out, `automationId="btn_save_105"`) {
		t.Errorf("new id missing from output:\n%s", out)
	}
	if strings.Contains(out, "btn_save_100") {
		t.Error("old id still present")
	}

	id, err := AutomationID(out)
	if err != nil {
		t.Fatal(err)
	}
	if id != "btn_save_105" {
		t.Errorf("AutomationID() = %q, want btn_save_105", id)
	}

	if _, err := ReplaceAutomationID("<broken", "x"); core.KindOf(err) != core.KindParse {
		t.Errorf("error kind = %v, want parse", core.KindOf(err))
	}
}

func TestReplaceAutomationIDTargetsLastStep(t *testing.T) {
	doc := `
<Selector>
  <Element automationId="outerPane" controlType="Pane"/>
  <Element automationId="btn_ok_1" controlType="Button"/>
</Selector>`

	out, err := ReplaceAutomationID(doc, "btn_ok_2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `automationId="outerPane"`) {
		t.Error("ancestor step must be untouched")
	}
	if !strings.Contains(out, `automationId="btn_ok_2"`) {
		t.Error("target step not rewritten")
	}
}
