// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []Item {
	return []Item{
		{Title: "collect sources", Status: StatusDone},
		{Title: "read papers", Status: StatusDoing},
		{Title: "summarize", Status: StatusTodo},
	}
}

func TestRender(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		out, err := Render(nil)
		require.NoError(t, err)
		assert.Equal(t, "<PLAN>\n</PLAN>\n", out)
		assert.Equal(t, EmptyText, out)
	})

	t.Run("reindexes ignoring input ids", func(t *testing.T) {
		items := []Item{
			{ID: 7, Title: "a", Status: StatusTodo},
			{ID: 2, Title: "  b  ", Status: StatusDone},
		}
		out, err := Render(items)
		require.NoError(t, err)
		assert.Equal(t, "<PLAN>\n- [todo][1] a\n- [done][2] b\n</PLAN>\n", out)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := Render([]Item{{Title: "a", Status: "paused"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFormat))
	})

	t.Run("empty title", func(t *testing.T) {
		_, err := Render([]Item{{Title: "   ", Status: StatusTodo}})
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("multi-line title", func(t *testing.T) {
		_, err := Render([]Item{{Title: "a\nb", Status: StatusTodo}})
		assert.ErrorIs(t, err, ErrFormat)
	})
}

func TestParse(t *testing.T) {
	t.Run("canonical", func(t *testing.T) {
		items, err := Parse("<PLAN>\n- [todo][1] a\n- [doing][2] b\n- [done][3] c\n</PLAN>\n")
		require.NoError(t, err)
		assert.Equal(t, []Item{
			{ID: 1, Title: "a", Status: StatusTodo},
			{ID: 2, Title: "b", Status: StatusDoing},
			{ID: 3, Title: "c", Status: StatusDone},
		}, items)
	})

	t.Run("empty block", func(t *testing.T) {
		items, err := Parse("<PLAN>\n</PLAN>")
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("surrounding text and blank lines", func(t *testing.T) {
		items, err := Parse("Here is the plan:\n<PLAN>\n\n  - [aborted][1] x  \n\n</PLAN>\ntrailer")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, StatusAborted, items[0].Status)
		assert.Equal(t, "x", items[0].Title)
	})

	failures := map[string]string{
		"missing markers":  "- [todo][1] a\n",
		"missing end":      "<PLAN>\n- [todo][1] a\n",
		"bad line":         "<PLAN>\n* a\n</PLAN>\n",
		"unknown status":   "<PLAN>\n- [paused][1] a\n</PLAN>\n",
		"id gap":           "<PLAN>\n- [todo][1] a\n- [todo][3] b\n</PLAN>\n",
		"id not from one":  "<PLAN>\n- [todo][2] a\n</PLAN>\n",
		"missing title":    "<PLAN>\n- [todo][1] \n</PLAN>\n",
		"missing brackets": "<PLAN>\n- todo 1 a\n</PLAN>\n",
	}
	for name, text := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(text)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	lists := [][]Item{
		nil,
		sample(),
		{{ID: 9, Title: "only", Status: StatusAborted}},
	}
	for _, items := range lists {
		text, err := Render(items)
		require.NoError(t, err)

		parsed, err := Parse(text)
		require.NoError(t, err)
		assert.Equal(t, Reindex(items), parsed)

		again, err := Render(parsed)
		require.NoError(t, err)
		assert.Equal(t, text, again)
	}
}

func TestTransitions(t *testing.T) {
	legal := [][2]Status{
		{StatusTodo, StatusDoing},
		{StatusDoing, StatusDone},
		{StatusDoing, StatusAborted},
	}
	for _, e := range legal {
		assert.NoError(t, ValidateTransition(1, e[0], e[1]), "%s -> %s", e[0], e[1])
	}

	all := []Status{StatusTodo, StatusDoing, StatusDone, StatusAborted}

	t.Run("terminal states are locked", func(t *testing.T) {
		for _, from := range []Status{StatusDone, StatusAborted} {
			for _, to := range all {
				err := ValidateTransition(4, from, to)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)

				var pe *PlanError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, 4, pe.ItemID)
				assert.Equal(t, from, pe.From)
				assert.Equal(t, to, pe.To)
			}
		}
	})

	t.Run("same state and skips are rejected", func(t *testing.T) {
		assert.ErrorIs(t, ValidateTransition(1, StatusTodo, StatusTodo), ErrInvalidTransition)
		assert.ErrorIs(t, ValidateTransition(1, StatusDoing, StatusDoing), ErrInvalidTransition)
		assert.ErrorIs(t, ValidateTransition(1, StatusTodo, StatusDone), ErrInvalidTransition)
		assert.ErrorIs(t, ValidateTransition(1, StatusTodo, StatusAborted), ErrInvalidTransition)
		assert.ErrorIs(t, ValidateTransition(1, StatusDoing, StatusTodo), ErrInvalidTransition)
	})

	err := ValidateTransition(2, StatusDone, StatusTodo)
	assert.Equal(t, "invalid status transition: id=2 done -> todo", err.Error())
}

func TestMutate_Upsert(t *testing.T) {
	base, err := Render(sample())
	require.NoError(t, err)

	t.Run("append grows ledger and keeps prefix", func(t *testing.T) {
		text, items, err := Mutate(base, Upsert{Entries: []Entry{
			{Title: "draft report", Status: StatusTodo},
			{Title: "review"},
		}})
		require.NoError(t, err)
		require.Len(t, items, 5)
		assert.Equal(t, Reindex(sample()), items[:3])
		assert.Equal(t, Item{ID: 4, Title: "draft report", Status: StatusTodo}, items[3])
		assert.Equal(t, Item{ID: 5, Title: "review", Status: StatusTodo}, items[4])

		parsed, err := Parse(text)
		require.NoError(t, err)
		assert.Equal(t, items, parsed)
	})

	t.Run("overwrite in place with transition", func(t *testing.T) {
		_, items, err := Mutate(base, Upsert{Entries: []Entry{
			{ID: 2, Status: StatusDone},
			{ID: 3, Title: "summarize findings"},
		}})
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, Item{ID: 2, Title: "read papers", Status: StatusDone}, items[1])
		assert.Equal(t, Item{ID: 3, Title: "summarize findings", Status: StatusTodo}, items[2])
	})

	t.Run("mixed overwrite and append", func(t *testing.T) {
		_, items, err := Mutate(base, Upsert{Entries: []Entry{
			{Title: "extra"},
			{ID: 3, Status: StatusDoing},
		}})
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, StatusDoing, items[2].Status)
		assert.Equal(t, "extra", items[3].Title)
	})

	t.Run("id beyond count", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{Entries: []Entry{{ID: 4, Status: StatusDone}}})
		assert.ErrorIs(t, err, ErrRange)
		var pe *PlanError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, 4, pe.ItemID)
	})

	t.Run("negative id", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{Entries: []Entry{{ID: -1, Title: "x"}}})
		assert.ErrorIs(t, err, ErrRange)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{Entries: []Entry{
			{ID: 3, Title: "a"},
			{ID: 3, Title: "b"},
		}})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("illegal transition is re-validated", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{Entries: []Entry{{ID: 1, Status: StatusTodo}}})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, _, err = Mutate(base, Upsert{Entries: []Entry{{ID: 3, Status: StatusDone}}})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("same-state upsert rejected", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{Entries: []Entry{{ID: 2, Status: StatusDoing, Title: "renamed"}}})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		var pe *PlanError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, StatusDoing, pe.From)
		assert.Equal(t, StatusDoing, pe.To)
	})

	t.Run("terminal item cannot be re-submitted", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{Entries: []Entry{{ID: 1, Status: StatusDone, Title: "ship v2"}}})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("retitle without status keeps state", func(t *testing.T) {
		_, items, err := Mutate(base, Upsert{Entries: []Entry{{ID: 1, Title: "ship v2"}}})
		require.NoError(t, err)
		assert.Equal(t, Item{ID: 1, Title: "ship v2", Status: StatusDone}, items[0])
	})

	t.Run("appended items must be todo", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{Entries: []Entry{{Title: "x", Status: StatusDoing}}})
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("appended items need a title", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{Entries: []Entry{{Title: "  "}}})
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("empty upsert", func(t *testing.T) {
		_, _, err := Mutate(base, Upsert{})
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("failure leaves nothing applied", func(t *testing.T) {
		items := sample()
		_, err := Apply(items, Upsert{Entries: []Entry{
			{ID: 3, Status: StatusDoing},
			{ID: 9, Status: StatusDone},
		}})
		require.Error(t, err)
		assert.Equal(t, StatusTodo, items[2].Status)
	})
}

func TestMutate_Remove(t *testing.T) {
	five := []Item{
		{Title: "one", Status: StatusDone},
		{Title: "two", Status: StatusDone},
		{Title: "three", Status: StatusDoing},
		{Title: "four", Status: StatusTodo},
		{Title: "five", Status: StatusTodo},
	}
	base, err := Render(five)
	require.NoError(t, err)

	t.Run("positions use the pre-mutation snapshot", func(t *testing.T) {
		text, items, err := Mutate(base, Remove{IDs: []int{2, 4}})
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, Item{ID: 1, Title: "one", Status: StatusDone}, items[0])
		assert.Equal(t, Item{ID: 2, Title: "three", Status: StatusDoing}, items[1])
		assert.Equal(t, Item{ID: 3, Title: "five", Status: StatusTodo}, items[2])
		assert.Equal(t, "<PLAN>\n- [done][1] one\n- [doing][2] three\n- [todo][3] five\n</PLAN>\n", text)
	})

	t.Run("order and duplicates do not matter", func(t *testing.T) {
		_, a, err := Mutate(base, Remove{IDs: []int{4, 2, 4}})
		require.NoError(t, err)
		_, b, err := Mutate(base, Remove{IDs: []int{2, 4}})
		require.NoError(t, err)
		assert.Equal(t, b, a)
	})

	t.Run("remove everything", func(t *testing.T) {
		text, items, err := Mutate(base, Remove{IDs: []int{1, 2, 3, 4, 5}})
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.Equal(t, EmptyText, text)
	})

	t.Run("out of range", func(t *testing.T) {
		_, _, err := Mutate(base, Remove{IDs: []int{2, 6}})
		assert.ErrorIs(t, err, ErrRange)
		_, _, err = Mutate(base, Remove{IDs: []int{0}})
		assert.ErrorIs(t, err, ErrRange)
	})

	t.Run("empty remove", func(t *testing.T) {
		_, _, err := Mutate(base, Remove{})
		assert.ErrorIs(t, err, ErrFormat)
	})
}

func TestMutate_BadInput(t *testing.T) {
	_, _, err := Mutate("no ledger here", Remove{IDs: []int{1}})
	assert.ErrorIs(t, err, ErrFormat)

	_, _, err = Mutate(EmptyText, nil)
	assert.ErrorIs(t, err, ErrFormat)

	var up *Upsert
	_, _, err = Mutate(EmptyText, up)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs(" 4, 2 ,,")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, ids)

	for _, bad := range []string{"", " , ", "0", "-1", "a", "1.5"} {
		_, err := ParseIDs(bad)
		assert.ErrorIs(t, err, ErrFormat, "input %q", bad)
	}

	_, err = ParseIDs("2,2")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestHelpers(t *testing.T) {
	items := Reindex(sample())
	assert.Equal(t, []int{2, 3}, Open(items))

	next, ok := NextTodo(items)
	require.True(t, ok)
	assert.Equal(t, 3, next.ID)

	_, ok = NextTodo(items[:2])
	assert.False(t, ok)

	assert.Equal(t, []Status{StatusDone, StatusAborted}, Next(StatusDoing))
	assert.Empty(t, Next(StatusDone))
}
