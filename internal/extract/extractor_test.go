package extract

import (
	"testing"

	"github.com/spetr/doit/pkg/types"
)

func TestExtractLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantOK  bool
		wantTag types.Tag
		wantTxt string
	}{
		{"double slash with colon", "// TODO: fix this bug", true, types.TagTODO, "fix this bug"},
		{"lowercase without colon", "// todo fix", true, types.TagTODO, "fix"},
		{"indented", "\t\t// FIXME: handle nil map", true, types.TagFIXME, "handle nil map"},
		{"block comment", "/* FIXME: leak here */", true, types.TagFIXME, "leak here"},
		{"block comment padded", "   /*  hack   spin until ready   */  ", false, "", ""},
		{"block comment tight", "/*HACK spin until ready*/", true, types.TagHACK, "spin until ready"},
		{"html comment", "<!-- NOTE: keep in sync with api -->", true, types.TagNOTE, "keep in sync with api"},
		{"hash comment", "# HACK: temporary workaround", true, types.TagHACK, "temporary workaround"},
		{"hash no space", "#TODO:fix", true, types.TagTODO, "fix"},
		{"dash comment", "-- BUG: wrong join order", true, types.TagBUG, "wrong join order"},
		{"crlf", "// TODO: windows line\r", true, types.TagTODO, "windows line"},
		{"trailing code comment", "x := 1 // TODO: trailing", false, "", ""},
		{"unclosed block", "/* TODO: open block", false, "", ""},
		{"unknown tag", "// XXX: not ours", false, "", ""},
		{"plain text", "nothing to see here", false, "", ""},
		{"tag only", "// TODO", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractLine(tt.line, 0)
			if ok != tt.wantOK {
				t.Fatalf("ExtractLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Tag != tt.wantTag {
				t.Errorf("Tag = %q, want %q", got.Tag, tt.wantTag)
			}
			if got.Text != tt.wantTxt {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantTxt)
			}
		})
	}
}

func TestExtractFirstPatternWins(t *testing.T) {
	got, ok := ExtractLine("// TODO: first -- FIXME: second", 0)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Tag != types.TagTODO {
		t.Errorf("Tag = %q, want TODO", got.Tag)
	}
	if got.Text != "first -- FIXME: second" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestExtract(t *testing.T) {
	src := "package main\n\n// TODO: fix this bug\nfunc main() {\n\t# not go but fine\n\t// NOTE: short\n}\n"

	got := Extract(src)
	if len(got) != 2 {
		t.Fatalf("Extract returned %d annotations, want 2: %+v", len(got), got)
	}

	first := got[0]
	if first.Tag != types.TagTODO || first.Text != "fix this bug" || first.Line != 2 {
		t.Errorf("first = %+v, want TODO 'fix this bug' at line 2", first)
	}
	if first.RawLine != "// TODO: fix this bug" {
		t.Errorf("RawLine = %q", first.RawLine)
	}

	if got[1].Line != 5 || got[1].Text != "short" {
		t.Errorf("second = %+v, want NOTE 'short' at line 5", got[1])
	}
}

func TestExtractSingleLine(t *testing.T) {
	got := Extract("// TODO: fix this bug")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	want := types.Annotation{Tag: types.TagTODO, Text: "fix this bug", Line: 0, RawLine: "// TODO: fix this bug"}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestExtractEmpty(t *testing.T) {
	if got := Extract(""); got != nil {
		t.Errorf("Extract(\"\") = %v, want nil", got)
	}
}

func TestShortAnnotationsAreExtractedButNotMeaningful(t *testing.T) {
	got := Extract("// todo fix")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if Meaningful(got[0]) {
		t.Errorf("Meaningful(%q) = true, want false", got[0].Text)
	}
}

func TestMeaningfulThreshold(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"12345678", false},     // exactly MinTextLength
		{"123456789", true},     // one over
		{"  12345678  ", false}, // trimmed before counting
	}

	for _, tt := range tests {
		if got := Meaningful(types.Annotation{Text: tt.text}); got != tt.want {
			t.Errorf("Meaningful(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFilter(t *testing.T) {
	in := []types.Annotation{
		{Text: "fix"},
		{Text: "refactor the parser"},
		{Text: ""},
	}
	got := Filter(in)
	if len(got) != 1 || got[0].Text != "refactor the parser" {
		t.Errorf("Filter = %+v", got)
	}
}
