package modes

import "testing"

func TestBuiltinModes(t *testing.T) {
	table := NewTable()

	for _, mode := range []string{"recon", "scan", "audit", "hardening"} {
		if !table.Recognized(mode) {
			t.Errorf("Expected mode %s to be recognized", mode)
		}
		if len(table.Vectors(mode)) == 0 {
			t.Errorf("Expected vectors for mode %s", mode)
		}
	}
}

func TestUnrecognizedFallsBackToDefault(t *testing.T) {
	table := NewTable()

	if table.Recognized("yolo") {
		t.Error("Expected yolo to be unrecognized")
	}

	got := table.Vectors("yolo")
	want := table.Vectors(table.Default())
	if len(got) != len(want) {
		t.Fatalf("Expected fallback to default vectors, got %d want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Tool != want[i].Tool {
			t.Errorf("Vector %d: got tool %s, want %s", i, got[i].Tool, want[i].Tool)
		}
	}
}

func TestVectorsReturnsCopy(t *testing.T) {
	table := NewTable()

	vs := table.Vectors("recon")
	vs[0].Tool = "mutated"

	if table.Vectors("recon")[0].Tool == "mutated" {
		t.Error("Vectors must not expose internal state")
	}
}

func TestRegisterReplacesMode(t *testing.T) {
	table := NewTable()
	table.Register("recon", []Vector{{Name: "custom", Tool: "custom_tool", TimeoutSeconds: 5}})

	vs := table.Vectors("recon")
	if len(vs) != 1 || vs[0].Tool != "custom_tool" {
		t.Errorf("Expected replaced vector list, got %v", vs)
	}
}
