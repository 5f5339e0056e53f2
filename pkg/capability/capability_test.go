package capability

import (
	"context"
	"testing"

	"github.com/longbridgeapp/assert"
)

func TestDeriveTier(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		tier   Tier
	}{
		{
			name: "all capabilities present",
			report: Report{
				StructuredStore: true, BlobStore: true, StringStore: true,
				Broadcast: true, Crypto: true, Preload: true,
			},
			tier: TierFull,
		},
		{
			name:   "nothing present",
			report: Report{},
			tier:   TierNone,
		},
		{
			name:   "crypto alone is still none",
			report: Report{Crypto: true},
			tier:   TierNone,
		},
		{
			name:   "blob only",
			report: Report{BlobStore: true},
			tier:   TierMinimal,
		},
		{
			name:   "string store only is none",
			report: Report{StringStore: true},
			tier:   TierNone,
		},
		{
			name:   "blob and string without structured",
			report: Report{BlobStore: true, StringStore: true},
			tier:   TierPartial,
		},
		{
			name:   "structured without broadcast",
			report: Report{StructuredStore: true, BlobStore: true, StringStore: true, Crypto: true},
			tier:   TierPartial,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.tier, deriveTier(test.report))
		})
	}
}

func TestProbe_NoEndpoints(t *testing.T) {
	report := Probe(context.Background(), Endpoints{})

	assert.False(t, report.StructuredStore)
	assert.False(t, report.BlobStore)
	assert.False(t, report.StringStore)
	assert.False(t, report.Broadcast)
	assert.False(t, report.Preload)
	// Crypto rides on the process, not an endpoint.
	assert.True(t, report.Crypto)
	assert.Equal(t, TierNone, report.Tier)
}

func TestProbe_StringStore(t *testing.T) {
	report := Probe(context.Background(), Endpoints{FileDir: t.TempDir()})

	assert.True(t, report.StringStore)
	assert.Equal(t, TierNone, report.Tier)
}

func TestReport_WithoutStructuredStore(t *testing.T) {
	report := Report{
		StructuredStore: true, BlobStore: true, StringStore: true,
		Broadcast: true, Crypto: true, Preload: true,
	}
	report.Tier = deriveTier(report)
	assert.Equal(t, TierFull, report.Tier)

	demoted := report.WithoutStructuredStore()

	assert.False(t, demoted.StructuredStore)
	assert.False(t, demoted.Preload)
	assert.Equal(t, TierPartial, demoted.Tier)
	// The original report stays untouched.
	assert.True(t, report.StructuredStore)
}

func TestReport_FeatureMap(t *testing.T) {
	report := Report{BlobStore: true, Crypto: true}
	features := report.FeatureMap()

	assert.True(t, features["blobStore"])
	assert.True(t, features["crypto"])
	assert.False(t, features["structuredStore"])
	assert.Equal(t, 6, len(features))
}
