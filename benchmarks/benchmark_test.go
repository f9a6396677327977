package benchmark

import (
	"context"
	"database/sql"
	"testing"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/accessguard"
	"github.com/oarkflow/accessguard/logger"
	"github.com/oarkflow/accessguard/stores"
)

// staticRegistry is a minimal entity metadata registry.
type staticRegistry struct{}

func (staticRegistry) Ready() bool            { return true }
func (staticRegistry) HasModel(n string) bool { return n == "sale.order" }
func (staticRegistry) Fields(string) map[string]accessguard.FieldInfo {
	return map[string]accessguard.FieldInfo{
		"name":       {Type: "char"},
		"state":      {Type: "selection"},
		"amount":     {Type: "float"},
		"partner_id": {Type: "many2one", Relation: "res.partner"},
	}
}

func newMemoryEngine(b *testing.B) *accessguard.Engine {
	b.Helper()
	subRules := stores.NewMemorySubRuleStore()
	eng, err := accessguard.NewEngine(
		stores.NewMemoryRuleSetStore(subRules),
		subRules,
		stores.NewMemoryGroupStore(),
		stores.NewMemoryViewNodeStore(),
		stores.NewMemoryReferenceStore(),
		accessguard.WithLogger(logger.NewNullLogger()),
		accessguard.WithModelRegistry(staticRegistry{}),
	)
	if err != nil {
		b.Fatalf("new engine: %v", err)
	}
	b.Cleanup(eng.Close)
	return eng
}

func newSQLEngine(b *testing.B) *accessguard.Engine {
	b.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		b.Fatalf("open sqlite: %v", err)
	}
	// one connection so the in-memory database persists
	sqlDB.SetMaxOpenConns(1)
	db := squealx.NewDb(sqlDB, "sqlite", "benchdb")
	b.Cleanup(func() { _ = db.Close() })
	if err := stores.Migrate(db); err != nil {
		b.Fatalf("migrate: %v", err)
	}
	eng, err := accessguard.NewEngine(
		stores.NewSQLRuleSetStore(db),
		stores.NewSQLSubRuleStore(db),
		stores.NewSQLGroupStore(db),
		stores.NewSQLViewNodeStore(db),
		stores.NewSQLReferenceStore(db),
		accessguard.WithLogger(logger.NewNullLogger()),
		accessguard.WithModelRegistry(staticRegistry{}),
	)
	if err != nil {
		b.Fatalf("new engine: %v", err)
	}
	b.Cleanup(eng.Close)
	return eng
}

func seedRestrictions(b *testing.B, eng *accessguard.Engine) {
	b.Helper()
	ctx := context.Background()
	rs := accessguard.NewRuleSetBuilder("bench restrictions").
		Users("alice").
		AllCompanies().
		Build()
	if err := eng.CreateRuleSet(ctx, rs); err != nil {
		b.Fatalf("create rule set: %v", err)
	}
	if err := eng.CreateModelAccess(ctx, &accessguard.ModelAccess{
		RuleSetID: rs.ID,
		Model:     "sale.order",
		HideEdit:  true,
	}); err != nil {
		b.Fatalf("create model access: %v", err)
	}
	da := accessguard.NewDomainAccessBuilder(rs.ID, "sale.order", accessguard.Domain{accessguard.Cond("state", "=", "done")}).
		Restrict(accessguard.OpUnlink).
		Build()
	if err := eng.CreateDomainAccess(ctx, da); err != nil {
		b.Fatalf("create domain access: %v", err)
	}
}

func benchmarkCheck(b *testing.B, eng *accessguard.Engine) {
	seedRestrictions(b, eng)
	ctx := context.Background()
	id := accessguard.Identity{UserID: "alice"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = eng.Check(ctx, id, "sale.order", accessguard.OpWrite)
	}
}

// Warm checks hit the decision cache; the store only matters for the
// first fold after an invalidation.
func BenchmarkCheckMemoryStore(b *testing.B) {
	benchmarkCheck(b, newMemoryEngine(b))
}

func BenchmarkCheckSQLStore(b *testing.B) {
	benchmarkCheck(b, newSQLEngine(b))
}

func benchmarkCheckCold(b *testing.B, eng *accessguard.Engine) {
	seedRestrictions(b, eng)
	ctx := context.Background()
	id := accessguard.Identity{UserID: "alice"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		eng.InvalidateCache()
		_, _ = eng.Check(ctx, id, "sale.order", accessguard.OpWrite)
	}
}

func BenchmarkCheckColdMemoryStore(b *testing.B) {
	benchmarkCheckCold(b, newMemoryEngine(b))
}

func BenchmarkCheckColdSQLStore(b *testing.B) {
	benchmarkCheckCold(b, newSQLEngine(b))
}

func BenchmarkRecordDomain(b *testing.B) {
	eng := newMemoryEngine(b)
	seedRestrictions(b, eng)
	ctx := context.Background()
	id := accessguard.Identity{UserID: "alice"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		eng.InvalidateCache()
		_, _ = eng.RecordDomain(ctx, id, "sale.order", accessguard.OpUnlink)
	}
}

const benchFormView = `<form string="Order">
	<header>
		<button name="action_confirm" type="object" string="Confirm"/>
	</header>
	<sheet>
		<group>
			<field name="name"/>
			<field name="state"/>
			<field name="amount"/>
			<field name="partner_id"/>
		</group>
	</sheet>
</form>`

func BenchmarkRewriteView(b *testing.B) {
	eng := newMemoryEngine(b)
	ctx := context.Background()
	rs := accessguard.NewRuleSetBuilder("view restrictions").
		Users("alice").
		AllCompanies().
		Build()
	if err := eng.CreateRuleSet(ctx, rs); err != nil {
		b.Fatalf("create rule set: %v", err)
	}
	fa := accessguard.NewFieldAccessBuilder(rs.ID, "sale.order").
		Fields("amount").
		Invisible().
		Build()
	if err := eng.CreateFieldAccess(ctx, fa); err != nil {
		b.Fatalf("create field access: %v", err)
	}
	id := accessguard.Identity{UserID: "alice"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := eng.RewriteView(ctx, id, "sale.order", accessguard.ViewForm, benchFormView); err != nil {
			b.Fatalf("rewrite: %v", err)
		}
	}
}
