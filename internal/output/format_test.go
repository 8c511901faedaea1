package output_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-sh/halyard/internal/output"
)

func TestFormatter_Printf(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatText, &buf)

	err := f.Printf("hello %s\n", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", buf.String())
}

func TestFormatter_Println(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatText, &buf)

	err := f.Println("hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", buf.String())
}

func TestFormatter_IsJSON(t *testing.T) {
	t.Parallel()
	assert.True(t, output.NewFormatter(output.FormatJSON, &bytes.Buffer{}).IsJSON())
	assert.False(t, output.NewFormatter(output.FormatText, &bytes.Buffer{}).IsJSON())
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  output.Format
	}{
		{"json", output.FormatJSON},
		{" JSON ", output.FormatJSON},
		{"text", output.FormatText},
		{"Text", output.FormatText},
		{"auto", output.FormatAuto},
		{"", output.FormatAuto},
		{"bogus", output.FormatAuto},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, output.ParseFormat(tc.input))
		})
	}
}

func TestDetectFormat_Explicit(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Equal(t, output.FormatText, output.DetectFormat(&buf, output.FormatText))
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, output.FormatJSON))
}

func TestDetectFormat_AutoNonTTY(t *testing.T) {
	t.Parallel()
	// A bytes.Buffer is never a terminal, so auto resolves to JSON.
	var buf bytes.Buffer
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, output.FormatAuto))
}

func TestTable_Render(t *testing.T) {
	t.Parallel()

	tbl := output.NewTable("NAME", "CHAIN", "AMOUNT")
	tbl.AddRow("treasury", "base", "0.25")
	tbl.AddRow("ops", "ethereum", "1.00")

	got := tbl.String()
	lines := bytes.Split([]byte(got), []byte("\n"))
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, got, "NAME")
	assert.Contains(t, got, "treasury")
	assert.Contains(t, got, "ethereum")
}

func TestTable_PadsShortRows(t *testing.T) {
	t.Parallel()

	tbl := output.NewTable("A", "B", "C")
	tbl.AddRow("x")
	tbl.AddRow("long-cell", "y", "z")

	got := tbl.String()
	assert.Contains(t, got, "long-cell")
	assert.Contains(t, got, "z")
}

func TestTable_Empty(t *testing.T) {
	t.Parallel()

	var tbl output.Table
	assert.Empty(t, tbl.String())
}
