package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCalc_PrintsPlainText(t *testing.T) {
	out, err := runRoot(t, "calc", "--balance", "48500", "--deposit", "50000", "--phase", "funded", "--setup", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "Final risk: 0.55% = $274.62")
	assert.Contains(t, out, "Trades to recover: RECOVERY: 6.3")
	assert.NotContains(t, out, "<b>")
}

func TestCalc_JSON(t *testing.T) {
	out, err := runRoot(t, "calc", "--balance", "48500", "--deposit", "50000", "--json")
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.EqualValues(t, 1, body["entry_count"])
}

func TestCalc_PreviousProfitIsUSD(t *testing.T) {
	out, err := runRoot(t, "calc", "--balance", "48500", "--deposit", "50000", "--prev-profit", "1000")
	require.NoError(t, err)

	// 1000 * 0.4 / 48500 * 100
	assert.Contains(t, out, "Profit bonus: +0.82%")
	assert.Contains(t, out, "Entries: 2")
}

func TestCalc_RejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"calc", "--balance", "48500", "--deposit", "50000", "--phase", "demo"},
		{"calc", "--balance", "48500", "--deposit", "50000", "--volatility", "wild"},
		{"calc", "--balance", "48500", "--deposit", "50000", "--day", "0"},
		{"calc", "--balance", "48500"},
		{"calc", "--balance", "48500", "--deposit", "50000", "--confidence", "NaN"},
		{"calc", "--balance", "48500", "--deposit", "50000", "--efficiency", "+Inf"},
	}
	for _, args := range cases {
		_, err := runRoot(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "✅ Final risk & more", plainText("✅ <b>Final risk &amp; more</b>"))
}
