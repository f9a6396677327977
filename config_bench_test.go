package accessguard_test

import (
	"context"
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/oarkflow/accessguard"
	"github.com/oarkflow/accessguard/logger"
	"github.com/oarkflow/accessguard/stores"
)

// Generate a config with N rule sets, each carrying one sub-rule per kind
func generateBenchConfig(numRuleSets int) *accessguard.Config {
	b := accessguard.NewConfigBuilder()
	for i := 0; i < numRuleSets; i++ {
		id := fmt.Sprintf("rs-%d", i)
		b.AddRuleSet(accessguard.NewRuleSetBuilder(fmt.Sprintf("restrictions %d", i)).
			ID(id).
			Users(fmt.Sprintf("u%d", i)).
			AllCompanies().
			Build())
		b.AddModelAccess(&accessguard.ModelAccess{RuleSetID: id, Model: "sale.order", HideCreate: true})
		b.AddFieldAccess(accessguard.NewFieldAccessBuilder(id, "sale.order").
			Fields("amount", "state").
			Readonly().
			Build())
		b.AddDomainAccess(accessguard.NewDomainAccessBuilder(id, "sale.order", accessguard.Domain{accessguard.Cond("state", "=", "done")}).
			Restrict(accessguard.OpWrite, accessguard.OpUnlink).
			Build())
	}
	return b.Build()
}

func newBenchEngine(b *testing.B, cfg *accessguard.Config) *accessguard.Engine {
	b.Helper()
	subRules := stores.NewMemorySubRuleStore()
	engine, err := accessguard.NewEngine(
		stores.NewMemoryRuleSetStore(subRules),
		subRules,
		stores.NewMemoryGroupStore(),
		stores.NewMemoryViewNodeStore(),
		stores.NewMemoryReferenceStore(),
		accessguard.WithLogger(logger.NewNullLogger()),
		accessguard.WithModelRegistry(newFakeRegistry()),
	)
	if err != nil {
		b.Fatalf("new engine: %v", err)
	}
	b.Cleanup(engine.Close)
	if cfg != nil {
		if err := engine.ApplyConfig(context.Background(), cfg); err != nil {
			b.Fatalf("apply config: %v", err)
		}
	}
	return engine
}

// Benchmark YAML Encoding
func BenchmarkYAMLEncode(b *testing.B) {
	cfg := generateBenchConfig(10)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = cfg.ToYAML()
	}
}

// Benchmark YAML Decoding
func BenchmarkYAMLDecode(b *testing.B) {
	cfg := generateBenchConfig(10)
	data, _ := cfg.ToYAML()
	loader := accessguard.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadYAML(data)
	}
}

// Benchmark JSON Encoding
func BenchmarkJSONEncode(b *testing.B) {
	cfg := generateBenchConfig(10)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = cfg.ToJSON()
	}
}

// Benchmark JSON Decoding
func BenchmarkJSONDecode(b *testing.B) {
	cfg := generateBenchConfig(10)
	data, _ := cfg.ToJSON()
	loader := accessguard.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadJSON(data)
	}
}

// Benchmark domain expression parsing
func BenchmarkParseDomain(b *testing.B) {
	src := `["|", ["state", "=", "done"], "&", ["amount", ">", 100], ["partner_id.active", "=", true]]`

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = accessguard.ParseDomain(src)
	}
}

// Benchmark a cold model-rule fold (cache dropped every iteration)
func BenchmarkModelRulesCold(b *testing.B) {
	engine := newBenchEngine(b, generateBenchConfig(20))
	ctx := context.Background()
	id := accessguard.Identity{UserID: "u1"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		engine.InvalidateCache()
		if _, err := engine.ModelRules(ctx, id, "sale.order"); err != nil {
			b.Fatalf("model rules: %v", err)
		}
	}
}

// Benchmark view rewriting against the form fixture
func BenchmarkRewriteFormView(b *testing.B) {
	engine := newBenchEngine(b, generateBenchConfig(5))
	ctx := context.Background()
	id := accessguard.Identity{UserID: "u1"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := engine.RewriteView(ctx, id, "sale.order", accessguard.ViewForm, orderFormView); err != nil {
			b.Fatalf("rewrite: %v", err)
		}
	}
}

// Benchmarks with larger configs
func BenchmarkYAMLEncodeLarge(b *testing.B) {
	cfg := generateBenchConfig(100)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = cfg.ToYAML()
	}
}

func BenchmarkApplyConfigLarge(b *testing.B) {
	cfg := generateBenchConfig(100)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		engine := newBenchEngine(b, nil)
		b.StartTimer()
		if err := engine.ApplyConfig(ctx, cfg); err != nil {
			b.Fatalf("apply config: %v", err)
		}
	}
}

// Size comparison test
func TestConfigSizeComparison(t *testing.T) {
	cfg := generateBenchConfig(100)

	yamlData, _ := yaml.Marshal(cfg)
	jsonData, _ := cfg.ToJSON()

	t.Logf("Size Comparison (100 rule sets):")
	t.Logf("  YAML: %d bytes", len(yamlData))
	t.Logf("  JSON: %d bytes (%.0f%%)", len(jsonData), float64(len(jsonData))/float64(len(yamlData))*100)
}
