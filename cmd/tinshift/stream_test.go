package main

import (
	"bytes"
	"strings"
	"testing"

	"tinshift/internal/tinshift"
)

const meshDoc = `{
  "file_type": "triangulation_file",
  "format_version": "1.0",
  "transformed_components": ["horizontal", "vertical"],
  "vertices_columns": ["source_x", "source_y", "target_x", "target_y", "offset_z"],
  "triangles_columns": ["idx_vertex1", "idx_vertex2", "idx_vertex3"],
  "vertices": [[0, 0, 100, 0, 1], [16, 0, 116, 0, 1], [0, 16, 100, 16, 1]],
  "triangles": [[0, 1, 2]]
}`

func evaluator(t *testing.T) *tinshift.Evaluator {
	t.Helper()
	ds, err := tinshift.ParseJSON([]byte(meshDoc))
	if err != nil {
		t.Fatal(err)
	}
	return tinshift.NewEvaluator(ds)
}

func TestRunForward(t *testing.T) {
	in := strings.NewReader("4 4 10\n# comment\n\n50 50\n2 2 label text\n")
	var out bytes.Buffer
	bad, err := run(evaluator(t), tinshift.Forward, in, &out, 3)
	if err != nil || bad != 0 {
		t.Fatalf("bad=%d err=%v", bad, err)
	}
	want := "104.000 4.000 11.000\n\n* * *\n102.000 2.000 1.000 label text\n"
	if out.String() != want {
		t.Errorf("got %q\nwant %q", out.String(), want)
	}
}

func TestRunInverse(t *testing.T) {
	var out bytes.Buffer
	if _, err := run(evaluator(t), tinshift.Inverse, strings.NewReader("104 4 11\n"), &out, 2); err != nil {
		t.Fatal(err)
	}
	if out.String() != "4.00 4.00 10.00\n" {
		t.Errorf("got %q", out.String())
	}
}

func TestRunMalformed(t *testing.T) {
	var out bytes.Buffer
	bad, err := run(evaluator(t), tinshift.Forward, strings.NewReader("1\nx 2\n1 1\n"), &out, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bad != 2 {
		t.Errorf("bad = %d", bad)
	}
	if out.String() != "* * *\n* * *\n101 1 1\n" {
		t.Errorf("got %q", out.String())
	}
}
