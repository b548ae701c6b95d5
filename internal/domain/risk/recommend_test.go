package risk

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhenotypeRecommendations(t *testing.T) {
	tests := []struct {
		typ    PhenotypeType
		sglt2  bool
		ras    bool
		statin bool
		bp     string
		freq   MonitoringFrequency
	}{
		{PhenotypeI, true, true, true, TargetBPIntensive, MonitorMonthly},
		{PhenotypeII, true, true, false, TargetBPIntensive, MonitorQuarterly},
		{PhenotypeIII, false, false, true, TargetBPIntensive, MonitorQuarterly},
		{PhenotypeIV, false, false, false, TargetBPRelaxed, MonitorMonthly},
		{PhenotypeModerate, false, true, true, TargetBPIntensive, MonitorBiannually},
		{PhenotypeLow, false, false, false, TargetBPStandard, MonitorAnnually},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			b := ResolveRecommendations(Phenotype{Type: tt.typ})
			assert.Equal(t, SourcePhenotype, b.Source)
			assert.Equal(t, tt.sglt2, b.RecommendSGLT2i)
			assert.Equal(t, tt.ras, b.RecommendRASInhibitor)
			assert.Equal(t, tt.statin, b.RecommendStatin)
			assert.Equal(t, tt.bp, b.TargetBP)
			assert.Equal(t, tt.freq, b.MonitoringFrequency)
			assert.False(t, b.RequiresNephrologyReferral)
		})
	}
}

func TestPhenotypeMonitoringFollowsSeverity(t *testing.T) {
	types := AllPhenotypeTypes()
	sort.Slice(types, func(i, j int) bool { return types[i].Severity() < types[j].Severity() })

	prev := -1
	for _, typ := range types {
		f := ResolveRecommendations(Phenotype{Type: typ}).MonitoringFrequency.Rank()
		assert.GreaterOrEqual(t, f, prev, "phenotype %s", typ)
		prev = f
	}
}

func TestRiskTierMonitoringIsMonotonic(t *testing.T) {
	prev := -1
	for _, level := range AllRiskLevels() {
		f := frequencyForTier(level).Rank()
		assert.Greater(t, f, prev, "tier %s", level)
		prev = f
	}
}

func TestMonitoringFrequencyInterval(t *testing.T) {
	freqs := []MonitoringFrequency{MonitorAnnually, MonitorBiannually, MonitorQuarterly, MonitorMonthly, MonitorBiweekly, MonitorWeekly}
	for i := 1; i < len(freqs); i++ {
		assert.Less(t, freqs[i].IntervalDays(), freqs[i-1].IntervalDays())
		assert.Greater(t, freqs[i].Rank(), freqs[i-1].Rank())
	}
}
