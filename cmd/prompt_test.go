package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedl/internal"
)

func TestPrompter_Choose(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("2\n"), &out)

	idx, err := p.choose("Pick one:", []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, out.String(), "alpha")
	assert.Contains(t, out.String(), "beta")

	for _, answer := range []string{"0\n", "3\n", "x\n"} {
		p := newPrompter(strings.NewReader(answer), &out)
		_, err := p.choose("Pick one:", []string{"alpha", "beta"})
		assert.ErrorIs(t, err, errInvalidChoice, answer)
	}

	_, err = newPrompter(strings.NewReader(""), &out).choose("Pick one:", []string{"alpha"})
	assert.Error(t, err, "EOF without an answer")
}

func TestPrompter_AskWithoutNewline(t *testing.T) {
	var out bytes.Buffer
	answer, err := newPrompter(strings.NewReader("  last line "), &out).ask("? ")
	require.NoError(t, err)
	assert.Equal(t, "last line", answer)
}

func TestPrompter_Lines(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("https://a/1\n# note\n https://b/2 \n\nhttps://ignored\n"), &out)
	assert.Equal(t, []string{"https://a/1", "https://b/2"}, p.lines("Paste:"))

	p = newPrompter(strings.NewReader("https://a/1"), &out)
	assert.Equal(t, []string{"https://a/1"}, p.lines("Paste:"))
}

func TestPrompter_SelectFiles(t *testing.T) {
	files := []internal.RemoteFile{
		{Name: "e01.mkv", Size: 1 << 30},
		{Name: "e02.mkv"},
		{Name: "e03.mkv"},
	}

	tests := []struct {
		answer string
		want   internal.SelectionSet
	}{
		{"\n", internal.SelectionSet{1, 2, 3}},
		{"all\n", internal.SelectionSet{1, 2, 3}},
		{"1,3\n", internal.SelectionSet{1, 3}},
		{"2-3\n", internal.SelectionSet{2, 3}},
		{"2-9\n", internal.SelectionSet{}},
		{"7\n", internal.SelectionSet{}},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := newPrompter(strings.NewReader(tt.answer), &out).selectFiles(files)
		assert.ElementsMatch(t, tt.want, got, tt.answer)
		assert.Contains(t, out.String(), "(1.0 GiB)")
	}
}

func TestProbeLabel(t *testing.T) {
	assert.Contains(t, probeLabel(internal.ProbeCached), "Cached")
	assert.Contains(t, probeLabel(internal.ProbeNotCached), "Not Cached")
	assert.Contains(t, probeLabel(internal.ProbeNotSupported), "Not Supported")
	assert.Equal(t, "Unknown", probeLabel(internal.ProbeUnknown))
}

func TestConsole_Quiet(t *testing.T) {
	var out bytes.Buffer
	con := console{out: &out, quiet: true}
	con.info("hidden")
	con.success("hidden")
	con.warn("hidden")
	assert.Empty(t, out.String())

	con.fail("shown %d", 1)
	assert.Contains(t, out.String(), "shown 1")
}
