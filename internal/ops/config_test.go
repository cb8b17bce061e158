package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"registry": {
			"categories": [{"name": "tech"}],
			"topics": [
				{"ticker": "AI", "name": "Artificial Intelligence", "category": "tech", "totalShares": 1000000, "initialPrice": 2.0},
				{"ticker": "VR", "name": "Virtual Reality", "category": "tech", "totalShares": 500000, "initialPrice": 1.5}
			]
		},
		"auction": {"baseIntervalSec": 600, "jitterSec": 60},
		"pricing": {"repriceIntervalSec": 300, "sensitivity": 0.2},
		"clearing": {"shortCapFraction": 0.1},
		"settle": {"startingCash": "25000"},
		"bus": {"buffer": 128}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, loaded.Registry.TopicCount())
	_, ok := loaded.Registry.TopicIDByTicker("AI")
	assert.True(t, ok)

	assert.Equal(t, 10*time.Minute, loaded.Auction.BaseInterval)
	assert.Equal(t, time.Minute, loaded.Auction.Jitter)
	assert.Equal(t, 5*time.Minute, loaded.RepriceInterval)
	assert.Equal(t, 0.2, loaded.Pricing.Sensitivity)
	assert.Equal(t, 0.25, loaded.Pricing.MaxMovePct)
	assert.Equal(t, 0.1, loaded.Clearing.ShortCapFraction)
	assert.Equal(t, "25000", loaded.Settle.StartingCash.String())
	assert.Equal(t, 128, loaded.BusBuffer)
	assert.Nil(t, loaded.Database)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"registry": {
			"categories": [{"name": "tech"}],
			"topics": [{"ticker": "AI", "name": "AI", "category": "tech", "totalShares": 1000, "initialPrice": 1.0}]
		}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, loaded.Auction.BaseInterval)
	assert.Equal(t, 2*time.Minute, loaded.Auction.Jitter)
	assert.Equal(t, 10*time.Minute, loaded.RepriceInterval)
	assert.Equal(t, 0.1, loaded.Pricing.Sensitivity)
	assert.Equal(t, 0.2, loaded.Clearing.ShortCapFraction)
	assert.Equal(t, float64(2), loaded.Clearing.SqueezeMultiplier)
	assert.Equal(t, "10000", loaded.Settle.StartingCash.String())
}

func TestLoadRejectsUnknownCategory(t *testing.T) {
	path := writeConfig(t, `{
		"registry": {
			"categories": [{"name": "tech"}],
			"topics": [{"ticker": "OIL", "name": "Oil", "category": "energy", "totalShares": 1000, "initialPrice": 1.0}]
		}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category not found")
}

func TestLoadRejectsBadParameters(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "non-positive shares",
			body: `{"registry": {"categories": [{"name": "t"}], "topics": [{"ticker": "A", "name": "A", "category": "t", "totalShares": 0, "initialPrice": 1}]}}`,
			want: "totalShares",
		},
		{
			name: "jitter exceeds interval",
			body: `{"registry": {"categories": [{"name": "t"}], "topics": [{"ticker": "A", "name": "A", "category": "t", "totalShares": 10, "initialPrice": 1}]}, "auction": {"baseIntervalSec": 60, "jitterSec": 120}}`,
			want: "jitter",
		},
		{
			name: "maxMovePct out of range",
			body: `{"registry": {"categories": [{"name": "t"}], "topics": [{"ticker": "A", "name": "A", "category": "t", "totalShares": 10, "initialPrice": 1}]}, "pricing": {"maxMovePct": 1.5}}`,
			want: "maxMovePct",
		},
		{
			name: "bad starting cash",
			body: `{"registry": {"categories": [{"name": "t"}], "topics": [{"ticker": "A", "name": "A", "category": "t", "totalShares": 10, "initialPrice": 1}]}, "settle": {"startingCash": "lots"}}`,
			want: "startingCash",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
