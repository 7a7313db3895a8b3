package handoff

import "testing"

func TestNumberingIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)

	for i := 1; i <= 3; i++ {
		path, err := st.Write(Meta{StageID: "stage-a", ContextPercent: 0.5})
		if err != nil {
			t.Fatalf("Write #%d: %v", i, err)
		}
		_ = path
	}

	latest, ok, err := st.Latest("stage-a")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !ok {
		t.Fatal("expected a handoff to exist")
	}
	if latest.Number != 3 {
		t.Fatalf("expected latest number 3, got %d", latest.Number)
	}
}

func TestFindLatestIsMax(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)
	for i := 0; i < 12; i++ {
		if _, err := st.Write(Meta{StageID: "stage-b"}); err != nil {
			t.Fatal(err)
		}
	}
	latest, ok, err := st.Latest("stage-b")
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if latest.Number != 12 {
		t.Fatalf("expected number 12 (not a lexicographic trap at 9), got %d", latest.Number)
	}
}

func TestLatestEmptyWhenNoHandoffs(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)
	_, ok, err := st.Latest("stage-c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no handoff to be found")
	}
}

func TestFileRefToRefString(t *testing.T) {
	cases := []struct {
		ref  FileRef
		want string
	}{
		{FileRef{Path: "a.go"}, "a.go"},
		{FileRef{Path: "a.go", StartLine: 10}, "a.go:10"},
		{FileRef{Path: "a.go", StartLine: 10, EndLine: 20}, "a.go:10-20"},
	}
	for _, c := range cases {
		if got := c.ref.ToRefString(); got != c.want {
			t.Errorf("ToRefString() = %q, want %q", got, c.want)
		}
	}
}

func TestStagesDoNotShareNumbering(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)
	if _, err := st.Write(Meta{StageID: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Write(Meta{StageID: "y"}); err != nil {
		t.Fatal(err)
	}
	latestY, ok, err := st.Latest("y")
	if err != nil || !ok {
		t.Fatalf("Latest(y): ok=%v err=%v", ok, err)
	}
	if latestY.Number != 1 {
		t.Fatalf("expected stage y's first handoff to be numbered 1, got %d", latestY.Number)
	}
}
