package relationship

import (
	"testing"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
)

const sessionOne = `
<Window title="Orders" class="OrderFrame" bounds="[0,0][1000,700]">
  <MenuBar automationId="menu_main" name="Main Menu" class="MenuClass" bounds="[0,0][1000,40]"/>
  <Pane automationId="body" class="PanelClass" bounds="[0,50][1000,700]">
    <Button automationId="btn_submit_100" name="Submit" class="ButtonClass" text="Submit" bounds="[850,620][970,660]"/>
    <Button automationId="btn_reset" name="Reset" class="ButtonClass" text="Reset" bounds="[720,620][840,660]"/>
    <Edit automationId="order_qty" name="Quantity" class="EditClass" value="3" bounds="[120,120][320,150]"/>
  </Pane>
</Window>`

const sessionTwo = `
<Window title="Orders" class="OrderFrame" bounds="[0,0][1000,700]">
  <MenuBar automationId="menu_main" name="Main Menu" class="MenuClass" bounds="[0,0][1000,40]"/>
  <Pane automationId="body" class="PanelClass" bounds="[0,50][1000,700]">
    <Button automationId="btn_submit_101" name="Submit" class="ButtonClass" text="Submit" bounds="[850,620][970,660]"/>
    <Button automationId="btn_reset" name="Reset" class="ButtonClass" text="Reset" bounds="[720,620][840,660]"/>
    <Edit automationId="order_qty" name="Quantity" class="EditClass" value="3" bounds="[120,120][320,150]"/>
  </Pane>
</Window>`

func findByID(t *testing.T, p provider.ElementProvider, id string) provider.Node {
	t.Helper()
	root, err := p.Root()
	if err != nil {
		t.Fatal(err)
	}
	var target provider.Node
	_ = provider.Walk(p, root, -1, func(n provider.Node, depth int) bool {
		attrs, aerr := p.Attributes(n)
		if aerr == nil && attrs.AutomationID == id {
			target = n
		}
		return true
	})
	if target == nil {
		t.Fatalf("element %q not in fixture", id)
	}
	return target
}

func buildGraph(t *testing.T) (*provider.TreeProvider, *Mapper, *Graph) {
	t.Helper()
	p, err := provider.NewTreeProvider(sessionOne)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMapper(p, fingerprint.NewEngine())
	g, err := m.Build(findByID(t, p, "btn_submit_100"), "cache_submit")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return p, m, g
}

func TestBuildGraph(t *testing.T) {
	_, _, g := buildGraph(t)

	if g.CenterID != "cache_submit" || g.Center == nil || g.Center.Name != "Submit" {
		t.Errorf("center not captured: %+v", g.CenterID)
	}
	if len(g.Parents) != 2 {
		t.Errorf("parent edges = %d, want 2 (pane, window)", len(g.Parents))
	}
	if len(g.Parents) >= 2 && g.Parents[0].Stability < g.Parents[1].Stability {
		t.Error("nearer parent must be at least as stable as the farther one")
	}
	if len(g.Siblings) == 0 || len(g.Siblings) > maxSiblings {
		t.Errorf("sibling edges = %d", len(g.Siblings))
	}
	if len(g.Landmarks) != 1 || g.Landmarks[0].Target.ControlType != "MenuBar" {
		t.Errorf("landmarks = %+v", g.Landmarks)
	}
	if len(g.Children) != 0 {
		t.Errorf("leaf button has %d child edges", len(g.Children))
	}

	edges := g.Edges()
	for i := 1; i < len(edges); i++ {
		if edges[i].Stability > edges[i-1].Stability {
			t.Fatal("edges not ordered by stability")
		}
	}
}

func TestNavigateSiblingEdge(t *testing.T) {
	p, m, g := buildGraph(t)
	if err := p.Reload(sessionTwo); err != nil {
		t.Fatal(err)
	}

	var sibling *Edge
	for i := range g.Siblings {
		if g.Siblings[i].Target.Name == "Reset" {
			sibling = &g.Siblings[i]
			break
		}
	}
	if sibling == nil {
		t.Fatal("no reset sibling edge in graph")
	}

	res, err := m.Navigate(g, *sibling, findByID(t, p, "btn_reset"), time.Second)
	if err != nil {
		t.Fatalf("Navigate() error: %v", err)
	}
	if res.Attributes.AutomationID != "btn_submit_101" {
		t.Errorf("arrived at %q, want btn_submit_101", res.Attributes.AutomationID)
	}
	if res.Via != KindSibling {
		t.Errorf("via = %v, want sibling", res.Via)
	}
	if res.Confidence <= 0 || res.Confidence > sibling.Stability {
		t.Errorf("confidence = %v, want within (0, %v]", res.Confidence, sibling.Stability)
	}
}

func TestNavigateRejectsWrongArrival(t *testing.T) {
	p, m, g := buildGraph(t)
	if err := p.Reload(sessionTwo); err != nil {
		t.Fatal(err)
	}

	// Replaying the sibling steps from the quantity field lands on the
	// wrong element, which arrival verification must reject.
	var sibling *Edge
	for i := range g.Siblings {
		if g.Siblings[i].Target.Name == "Reset" {
			sibling = &g.Siblings[i]
		}
	}
	bad := Edge{
		Kind:      sibling.Kind,
		Target:    sibling.Target,
		StepsBack: []NavStep{{Action: GoParent}, {Action: ChildAt, Index: 2}},
		Stability: sibling.Stability,
	}

	_, err := m.Navigate(g, bad, findByID(t, p, "btn_reset"), time.Second)
	if core.KindOf(err) != core.KindValidation {
		t.Errorf("error kind = %v, want validation", core.KindOf(err))
	}
}

func TestFindAcrossSessions(t *testing.T) {
	p, m, g := buildGraph(t)
	if err := p.Reload(sessionTwo); err != nil {
		t.Fatal(err)
	}

	res, err := m.Find(g, 5*time.Second)
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if res.Attributes.AutomationID != "btn_submit_101" {
		t.Errorf("found %q, want btn_submit_101", res.Attributes.AutomationID)
	}
}

func TestFindFailsOnForeignWindow(t *testing.T) {
	p, m, g := buildGraph(t)
	foreign := `
<Window title="About" class="AboutBox" bounds="[0,0][400,200]">
  <Text automationId="version_label" name="Version 2.4" class="StaticText" bounds="[20,80][380,110]"/>
</Window>`
	if err := p.Reload(foreign); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Find(g, 2*time.Second); core.KindOf(err) != core.KindNotFound {
		t.Errorf("error kind = %v, want not_found", core.KindOf(err))
	}
}
