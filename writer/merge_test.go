package writer

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func readBack(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestMergeAppendSortsByDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvs.csv")
	lines := []string{
		"20230918,20230822,Gardner; Cory,Sell,1001,15000,Senate,Republican,,Alaska",
		"20230115,20230110,Smith; Jane,Buy,1001,15000,House,Democratic,CO-02,Colorado",
	}
	if err := MergeAppend(path, lines, SortByDate); err != nil {
		t.Fatal(err)
	}

	got := readBack(t, path)
	want := []string{lines[1], lines[0]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestMergeAppendIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvs.csv")
	lines := []string{
		"20230918,20230822,Gardner; Cory,Sell,1001,15000,Senate,Republican,,Alaska",
	}
	for i := 0; i < 3; i++ {
		if err := MergeAppend(path, lines, SortByDate); err != nil {
			t.Fatal(err)
		}
	}
	if got := readBack(t, path); len(got) != 1 {
		t.Fatalf("expected 1 line after repeated merges, got %d", len(got))
	}
}

func TestMergeAppendUnionAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	a := []string{"20230101,row-a"}
	b := []string{"20230102,row-b"}

	// Merging a then b and b then a yields the same file.
	p1 := filepath.Join(dir, "one.csv")
	p2 := filepath.Join(dir, "two.csv")
	for _, batch := range [][]string{a, b} {
		if err := MergeAppend(p1, batch, SortByDate); err != nil {
			t.Fatal(err)
		}
	}
	for _, batch := range [][]string{b, a} {
		if err := MergeAppend(p2, batch, SortByDate); err != nil {
			t.Fatal(err)
		}
	}

	if !reflect.DeepEqual(readBack(t, p1), readBack(t, p2)) {
		t.Fatal("merge order changed the file contents")
	}
}

func TestMergeAppendLexical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe", "20230918.csv")
	lines := []string{
		"ZBRA T8X0QPMS0UVH,ZBRA,20230822,Smith; Jane,Buy,1001,15000,House,Democratic,CO-02,Colorado",
		"CVS R735QTJ8XC9X,CVS,20230822,Gardner; Cory,Sell,1001,15000,Senate,Republican,,Alaska",
	}
	if err := MergeAppend(path, lines, SortLexical); err != nil {
		t.Fatal(err)
	}

	got := readBack(t, path)
	if got[0] != lines[1] || got[1] != lines[0] {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestMergeAppendCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.csv")
	if err := MergeAppend(path, []string{"20230101,x"}, SortByDate); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestMergeAppendSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvs.csv")
	if err := MergeAppend(path, []string{"", "20230101,x", "\n"}, SortByDate); err != nil {
		t.Fatal(err)
	}
	if got := readBack(t, path); len(got) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(got), got)
	}
}
