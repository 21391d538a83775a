package types

import "testing"

func TestCampaignMetrics_ZeroDenominators(t *testing.T) {
	c := &Campaign{}
	if got := c.CTR(); got != 0 {
		t.Fatalf("CTR with no impressions: want 0, got %f", got)
	}
	if got := c.ConversionRate(); got != 0 {
		t.Fatalf("ConversionRate with no clicks: want 0, got %f", got)
	}
	if got := c.CPC(); got != 0 {
		t.Fatalf("CPC with no clicks: want 0, got %f", got)
	}
	if got := c.CurrentROAS(); got != 0 {
		t.Fatalf("CurrentROAS with no spend: want 0, got %f", got)
	}
}

func TestCampaignMetrics_Ratios(t *testing.T) {
	c := &Campaign{
		Impressions: 2000,
		Clicks:      80,
		Conversions: 4,
		Spend:       20,
		Revenue:     50,
	}
	if got := c.CTR(); got != 0.04 {
		t.Fatalf("CTR: want 0.04, got %f", got)
	}
	if got := c.ConversionRate(); got != 0.05 {
		t.Fatalf("ConversionRate: want 0.05, got %f", got)
	}
	if got := c.CPC(); got != 0.25 {
		t.Fatalf("CPC: want 0.25, got %f", got)
	}
	if got := c.CurrentROAS(); got != 2.5 {
		t.Fatalf("CurrentROAS: want 2.5, got %f", got)
	}
}

func TestParsePlatform(t *testing.T) {
	if p, ok := ParsePlatform("  Meta "); !ok || p != PlatformMeta {
		t.Fatalf("ParsePlatform Meta: ok=%v p=%q", ok, p)
	}
	if p, ok := ParsePlatform("TIKTOK"); !ok || p != PlatformTikTok {
		t.Fatalf("ParsePlatform TIKTOK: ok=%v p=%q", ok, p)
	}
	if _, ok := ParsePlatform("linkedin"); ok {
		t.Fatalf("ParsePlatform should reject unknown platforms")
	}
}

func TestParseCampaignStatus(t *testing.T) {
	if s, ok := ParseCampaignStatus(" Active "); !ok || s != CampaignStatusActive {
		t.Fatalf("ParseCampaignStatus Active: ok=%v s=%q", ok, s)
	}
	if _, ok := ParseCampaignStatus("archived"); ok {
		t.Fatalf("ParseCampaignStatus should reject unknown statuses")
	}
}

func TestParseVariantType(t *testing.T) {
	if v, ok := ParseVariantType("Headline"); !ok || v != VariantTypeHeadline {
		t.Fatalf("ParseVariantType Headline: ok=%v v=%q", ok, v)
	}
	if _, ok := ParseVariantType("color"); ok {
		t.Fatalf("ParseVariantType should reject unknown variants")
	}
}

func TestOptimizerSettings_AwarenessMode(t *testing.T) {
	if DefaultOptimizerSettings().AwarenessMode() {
		t.Fatalf("default threshold must not enable awareness mode")
	}
	s := OptimizerSettings{MinROASThreshold: 0}
	if !s.AwarenessMode() {
		t.Fatalf("zero threshold should enable awareness mode")
	}
}
