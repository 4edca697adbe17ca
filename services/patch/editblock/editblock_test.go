// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editblock

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestParse_SingleBlock(t *testing.T) {
	blocks, err := Parse(doc(
		"src/a.py",
		"<<<<<<< SEARCH",
		"x = 1",
		"=======",
		"x = 2",
		">>>>>>> REPLACE",
	), []string{"src/a.py"}, nil)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, EditBlock{Path: "src/a.py", Search: "x = 1\n", Replace: "x = 2\n"}, blocks[0])
}

func TestParse_MarkerVariants(t *testing.T) {
	tests := []struct {
		name   string
		open   string
		div    string
		close  string
		blocks int
	}{
		{"seven", "<<<<<<< SEARCH", "=======", ">>>>>>> REPLACE", 1},
		{"five", "<<<<< SEARCH", "=====", ">>>>> REPLACE", 1},
		{"nine", "<<<<<<<<< SEARCH", "=========", ">>>>>>>>> REPLACE", 1},
		{"annotation", "<<<<<<< SEARCH (first hunk)", "=======", ">>>>>>> REPLACE", 1},
		{"trailing bracket", "<<<<<<< SEARCH>", "=======", ">>>>>>> REPLACE", 1},
		{"surrounding space", "  <<<<<<< SEARCH  ", " ======= ", "\t>>>>>>> REPLACE", 1},
		{"four is not a marker", "<<<< SEARCH", "=======", ">>>>>>> REPLACE", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := Parse(doc("a.go", tt.open, "old", tt.div, "new", tt.close), nil, nil)
			require.NoError(t, err)
			assert.Len(t, blocks, tt.blocks)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Run("missing filename", func(t *testing.T) {
		_, err := Parse(doc("<<<<<<< SEARCH", "a", "=======", "b", ">>>>>>> REPLACE"), nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrParse)
		assert.Contains(t, err.Error(), "missing filename before SEARCH")

		var ee *EditError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, 1, ee.Line)
	})

	t.Run("prose is not a filename", func(t *testing.T) {
		_, err := Parse(doc("Here is the change", "<<<<<<< SEARCH", "a", "=======", "b", ">>>>>>> REPLACE"), nil, nil)
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("missing divider", func(t *testing.T) {
		_, err := Parse(doc("a.go", "<<<<<<< SEARCH", "a", ">>>>>>> REPLACE"), nil, nil)
		assert.ErrorIs(t, err, ErrParse)
		assert.Contains(t, err.Error(), "divider")
	})

	t.Run("missing close", func(t *testing.T) {
		_, err := Parse(doc("a.go", "<<<<<<< SEARCH", "a", "=======", "b"), nil, nil)
		assert.ErrorIs(t, err, ErrParse)
		assert.Contains(t, err.Error(), "REPLACE")
	})

	t.Run("divider inside replace is content", func(t *testing.T) {
		blocks, err := Parse(doc("a.go", "<<<<<<< SEARCH", "a", "=======", "b", "=======", "c", ">>>>>>> REPLACE"), nil, nil)
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, "b\n=======\nc\n", blocks[0].Replace)
	})
}

func TestParse_MultipleBlocks(t *testing.T) {
	text := doc(
		"Update both files.",
		"",
		"a.go",
		"```go",
		"<<<<<<< SEARCH",
		"one",
		"=======",
		"uno",
		">>>>>>> REPLACE",
		"```",
		"<<<<<<< SEARCH",
		"two",
		"=======",
		"dos",
		">>>>>>> REPLACE",
		"",
		"b.go",
		"<<<<<<< SEARCH",
		"=======",
		"new file",
		">>>>>>> REPLACE",
	)
	blocks, err := Parse(text, []string{"a.go"}, nil)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, "a.go", blocks[0].Path)
	assert.Equal(t, "one\n", blocks[0].Search)

	// No filename context after the previous block: inherits a.go.
	assert.Equal(t, "a.go", blocks[1].Path)
	assert.Equal(t, "dos\n", blocks[1].Replace)

	assert.Equal(t, "b.go", blocks[2].Path)
	assert.Equal(t, "", blocks[2].Search)
	assert.Equal(t, "new file\n", blocks[2].Replace)
}

func TestParse_ProseEndingInPeriodInherits(t *testing.T) {
	text := doc(
		"a.py",
		"<<<<<<< SEARCH",
		"x = 1",
		"=======",
		"x = 2",
		">>>>>>> REPLACE",
		"Then update the notes.",
		"notes.",
		"<<<<<<< SEARCH",
		"y = 1",
		"=======",
		"y = 2",
		">>>>>>> REPLACE",
	)
	blocks, err := Parse(text, []string{"a.py"}, nil)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "a.py", blocks[1].Path)
}

func TestPathLike(t *testing.T) {
	for _, c := range []string{"a.py", "docs/notes", `win\path`, ".gitignore", "Makefile.am"} {
		assert.True(t, pathLike(c), c)
	}
	for _, c := range []string{"notes.", "e.g.", "Makefile", "two words.md", ""} {
		assert.False(t, pathLike(c), c)
	}
}

func TestParse_FilenameResolution(t *testing.T) {
	block := func(context ...string) string {
		return doc(append(context, "<<<<<<< SEARCH", "a", "=======", "b", ">>>>>>> REPLACE")...)
	}
	tests := []struct {
		name  string
		text  string
		valid []string
		want  string
	}{
		{"exact", block("src/a.py"), []string{"src/a.py", "lib/a.py"}, "src/a.py"},
		{"fence info string", block("```go cmd/main.go"), nil, "cmd/main.go"},
		{"fence after filename", block("cmd/main.go", "```go"), []string{"cmd/main.go"}, "cmd/main.go"},
		{"markdown heading", block("### `src/a.py`:"), []string{"src/a.py"}, "src/a.py"},
		{"bold", block("**src/a.py**"), []string{"src/a.py"}, "src/a.py"},
		{"base name", block("strings.go"), []string{"pkg/util/strings.go", "main.go"}, "pkg/util/strings.go"},
		{"similar", block("internal/servr.go"), []string{"internal/server.go", "cmd/main.go"}, "internal/server.go"},
		{"new file", block("docs/notes.md"), []string{"main.go"}, "docs/notes.md"},
		{"bold backticked new file", block("**`src/new_mod.py`**"), []string{"lib/other.txt"}, "src/new_mod.py"},
		{"backticked bold", block("`**src/a.py**`"), []string{"src/a.py"}, "src/a.py"},
		{"underscore emphasis", block("__docs/plan.md__"), nil, "docs/plan.md"},
		{"dunder name kept", block("pkg/__init__.py"), nil, "pkg/__init__.py"},
		{"dot file", block(".gitignore"), nil, ".gitignore"},
		{"colon inside bold", block("**`src/a.py`:**"), []string{"src/a.py"}, "src/a.py"},
		{"crlf", "src/a.py\r\n<<<<<<< SEARCH\r\na\r\n=======\r\nb\r\n>>>>>>> REPLACE\r\n", []string{"src/a.py"}, "src/a.py"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := Parse(tt.text, tt.valid, nil)
			require.NoError(t, err)
			require.Len(t, blocks, 1)
			assert.Equal(t, tt.want, blocks[0].Path)
		})
	}
}

func TestParse_AmbiguousFilenameIsDeterministic(t *testing.T) {
	text := doc("a.py", "<<<<<<< SEARCH", "a", "=======", "b", ">>>>>>> REPLACE")

	for i := 0; i < 10; i++ {
		for _, valid := range [][]string{
			{"src/a.py", "lib/a.py"},
			{"lib/a.py", "src/a.py"},
		} {
			blocks, err := Parse(text, valid, nil)
			require.NoError(t, err)
			assert.Equal(t, "lib/a.py", blocks[0].Path)
		}
	}

	blocks, err := Parse(text, []string{"src/a.py", "a.py", "lib/a.py"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a.py", blocks[0].Path, "exact match wins over base name")
}

func TestParse_CustomRanker(t *testing.T) {
	text := doc("a.py", "<<<<<<< SEARCH", "a", "=======", "b", ">>>>>>> REPLACE")

	blocks, err := Parse(text, []string{"lib/a.py"}, ExactOnly)
	require.NoError(t, err)
	assert.Equal(t, "a.py", blocks[0].Path)

	var seen []string
	custom := RankerFunc(func(candidate string, valid []string) (string, bool) {
		seen = append(seen, candidate)
		return "chosen.py", true
	})
	blocks, err = Parse(text, []string{"lib/a.py"}, custom)
	require.NoError(t, err)
	assert.Equal(t, "chosen.py", blocks[0].Path)
	assert.Equal(t, []string{"a.py"}, seen)
}

func TestDefaultRanker(t *testing.T) {
	r := DefaultRanker{}

	got, ok := r.Rank("a.py", []string{"src/a.py", "lib/a.py"})
	require.True(t, ok)
	assert.Equal(t, "lib/a.py", got)

	_, ok = r.Rank("zzz.txt", []string{"main.go"})
	assert.False(t, ok)

	_, ok = r.Rank("", []string{"main.go"})
	assert.False(t, ok)

	loose := DefaultRanker{Cutoff: 0.3}
	got, ok = loose.Rank("mian.go", []string{"main.go", "zzzz"})
	require.True(t, ok)
	assert.Equal(t, "main.go", got)

	assert.InDelta(t, 1.0, Similarity([]string{"a"}, []string{"a"}), 1e-9)
	assert.InDelta(t, 1.0, Similarity(nil, nil), 1e-9)
}

func TestApplyOne_ExactGreet(t *testing.T) {
	content := "def greet(name):\n    return f'hello, {name}'\n"
	got, err := ApplyOne(content, "return f'hello, {name}'\n", "return f'hi, {name}!'\n", "greet.py")
	require.NoError(t, err)
	assert.Equal(t, "def greet(name):\n    return f'hi, {name}!'\n", got)
	assert.NotEqual(t, content, got)
}

func TestApplyOne_Strategies(t *testing.T) {
	tests := []struct {
		name    string
		content string
		search  string
		replace string
		want    string
	}{
		{
			name:    "exact",
			content: "a\nb\nc\n",
			search:  "b\n",
			replace: "B\n",
			want:    "a\nB\nc\n",
		},
		{
			name:    "first window wins",
			content: "x\nx\n",
			search:  "x\n",
			replace: "y\n",
			want:    "y\nx\n",
		},
		{
			name:    "missing final newline",
			content: "a\nb",
			search:  "b",
			replace: "c",
			want:    "a\nc\n",
		},
		{
			name:    "leading blank line retried",
			content: "x\ny\nz\n",
			search:  "\ny\nz\n",
			replace: "Y\nZ\n",
			want:    "x\nY\nZ\n",
		},
		{
			name:    "two-line search with leading blank",
			content: "x\nfoo\nbar\n",
			search:  "\nfoo\n",
			replace: "baz\n",
			want:    "x\nbaz\nbar\n",
		},
		{
			name:    "consistent re-indent",
			content: "func f() {\n\tif x {\n\t\treturn 1\n\t}\n}\n",
			search:  "if x {\n\treturn 1\n}\n",
			replace: "if x {\n\treturn 2\n}\n",
			want:    "func f() {\n\tif x {\n\t\treturn 2\n\t}\n}\n",
		},
		{
			name:    "common indent removed first",
			content: "x\n    a\n    b\n",
			search:  "        a\n        b\n",
			replace: "        A\n        B\n",
			want:    "x\n    A\n    B\n",
		},
		{
			name:    "blank lines inside re-indented window",
			content: "  a\n\n  b\n",
			search:  "a\n\nb\n",
			replace: "a\n\nc\n",
			want:    "  a\n\n  c\n",
		},
		{
			name:    "ellipsis segments",
			content: "a\nb\nc\nd\ne\n",
			search:  "b\n...\nd\n",
			replace: "B\n...\nD\n",
			want:    "a\nB\nc\nD\ne\n",
		},
		{
			name:    "ellipsis trailing append",
			content: "a\nb\n",
			search:  "a\n...\n",
			replace: "A\n...\ntail\n",
			want:    "A\nb\ntail\n",
		},
		{
			name:    "wrapping fence and filename echo stripped",
			content: "old\n",
			search:  "greet.py\n```python\nold\n```\n",
			replace: "```python\nnew\n```\n",
			want:    "new\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyOne(tt.content, tt.search, tt.replace, "src/greet.py")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyOne_Append(t *testing.T) {
	got, err := ApplyOne("A", "", "X", "")
	require.NoError(t, err)
	assert.Equal(t, "A\nX\n", got)

	got, err = ApplyOne("", "  \n", "X\n", "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "X\n", got)

	got, err = ApplyOne("A\n", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "A\n", got)
}

func TestApplyOne_Failures(t *testing.T) {
	const content = "a\nb\nc\nd\ne\n"

	t.Run("no match names the target", func(t *testing.T) {
		_, err := ApplyOne(content, "zzz\n", "y\n", "notes.txt")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMatch)

		var ee *EditError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, "notes.txt", ee.Path)
	})

	t.Run("inconsistent indentation rejects", func(t *testing.T) {
		_, err := ApplyOne("  a\n    b\n", "a\nb\n", "A\nB\n", "")
		assert.ErrorIs(t, err, ErrMatch)
	})

	t.Run("ellipsis anchor mismatch is a hard failure", func(t *testing.T) {
		_, err := ApplyOne(content, "b\n...\nd\n", "B\n  ...\nD\n", "x.txt")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMatch)
		assert.Contains(t, err.Error(), "mismatched")
	})

	t.Run("ellipsis segment count mismatch", func(t *testing.T) {
		_, err := ApplyOne(content, "b\n...\nd\n", "B\nD\n", "x.txt")
		assert.ErrorIs(t, err, ErrMatch)
	})

	t.Run("ambiguous ellipsis segment declines", func(t *testing.T) {
		_, err := ApplyOne("x\nx\ny\n", "x\n...\ny\n", "X\n...\nY\n", "x.txt")
		assert.ErrorIs(t, err, ErrMatch)
	})
}

func TestSplitEllipsis(t *testing.T) {
	assert.Equal(t, []string{"a\n", "...\n", "b\n"}, splitEllipsis("a\n...\nb\n"))
	assert.Equal(t, []string{"", "...\n", ""}, splitEllipsis("...\n"))
	assert.Equal(t, []string{"plain\n"}, splitEllipsis("plain\n"))
}
