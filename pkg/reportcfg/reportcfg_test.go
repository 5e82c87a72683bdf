package reportcfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	cases := []Config{
		{
			Dest:      "report_1",
			FromTime:  1000,
			ToTime:    2000,
			UserNodes: []string{"nodeA", "nodeB"},
			Nodes:     []string{"nodeA", "nodeB"},
			HALog:     "/var/log/cluster/ha-debug",
			Sanitize:  []string{"passw.*", "usern.*"},
			ExtraLogs: []string{"/var/log/messages"},
			Verbosity: 2,
		},
		{
			Dest:     "with space",
			FromTime: 1,
			ToTime:   0,
			HALog:    "path with space's and $dollar",
		},
	}

	for _, c := range cases {
		t.Run(c.Dest, func(t *testing.T) {
			serialized := Serialize(c)
			got, err := Parse(serialized)
			require.NoError(t, err)
			assert.Equal(t, c.Dest, got.Dest)
			assert.Equal(t, c.FromTime, got.FromTime)
			assert.Equal(t, c.ToTime, got.ToTime)
			assert.Equal(t, c.HALog, got.HALog)
			assert.Equal(t, c.UserNodes, got.UserNodes)
			assert.Equal(t, c.Sanitize, got.Sanitize)
			assert.Equal(t, c.ExtraLogs, got.ExtraLogs)
			assert.Equal(t, c.Verbosity, got.Verbosity)
		})
	}
}

func TestParseMissingKey(t *testing.T) {
	_, err := Parse("DEST=foo FROM_TIME=1")
	assert.Error(t, err)
}

func TestParseMalformedToken(t *testing.T) {
	_, err := Parse("NOTAKEYVALUE")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{FromTime: 0}.Validate())
	assert.Error(t, Config{FromTime: 10, ToTime: 5}.Validate())
	assert.NoError(t, Config{FromTime: 10, ToTime: 20}.Validate())
	assert.NoError(t, Config{FromTime: 10, ToTime: 0}.Validate())
}

func TestShellQuoteRoundTripsEmbeddedQuote(t *testing.T) {
	c := Config{Dest: "d", FromTime: 1, Sanitize: []string{"it's a test"}}
	got, err := Parse(Serialize(c))
	require.NoError(t, err)
	assert.Equal(t, []string{"it's", "a", "test"}, got.Sanitize)
}
