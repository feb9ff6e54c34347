package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/invoicedesk")
	t.Setenv("SEQUENCE_POLICY", "strict-remote")
	t.Setenv("REMOTE_STORE", "gorm")
	t.Setenv("REMOTE_TIMEOUT_MS", "1500")
	t.Setenv("REDIS_LOCK_ENABLED", "yes")

	cfg := Load()

	assert.Equal(t, filepath.Join("/srv/invoicedesk", "invoice_log.csv"), cfg.SequenceLogPath)
	assert.Equal(t, filepath.Join("/srv/invoicedesk", "invoices.csv"), cfg.LedgerPath)
	assert.Equal(t, PolicyStrictRemote, cfg.SequencePolicy)
	assert.True(t, cfg.StrictRemote())
	assert.Equal(t, RemoteDatabase, cfg.RemoteStore)
	assert.True(t, cfg.RemoteEnabled())
	assert.Equal(t, 1500*time.Millisecond, cfg.RemoteTimeout)
	assert.True(t, cfg.RedisLockEnabled)
}

func TestNormalizeRemote(t *testing.T) {
	cases := map[string]string{
		"":         RemoteNone,
		"none":     RemoteNone,
		"SUPABASE": RemoteSupabase,
		"database": RemoteDatabase,
		"bogus":    RemoteNone,
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeRemote(in), in)
	}
}

func TestDealerProfileHolder_DefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	holder, err := NewDealerProfileHolder(Config{DataDir: dir}, zap.NewNop())
	require.NoError(t, err)

	p := holder.Get()
	assert.Equal(t, "Vallibel Finance PLC", p.FinanceCompany)
	assert.Len(t, p.Proforma.Terms, 4)
}

func TestDealerProfileHolder_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dealer.yml")
	content := []byte(`dealer:
  name: "Test Motors, Galle"
  finance_company: "People's Leasing"
  payment_methods: ["Cash"]
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	holder, err := NewDealerProfileHolder(Config{DealerProfile: path}, zap.NewNop())
	require.NoError(t, err)

	p := holder.Get()
	assert.Equal(t, "Test Motors, Galle", p.Name)
	assert.Equal(t, "People's Leasing", p.FinanceCompany)
	assert.Equal(t, []string{"Cash"}, p.PaymentMethods)
	// untouched keys keep their defaults
	assert.Equal(t, "No. 54, Beliatta Road, Tangalle", p.FinanceAddress)
}

func TestDealerProfileHolder_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dealer.yml")
	require.NoError(t, os.WriteFile(path, []byte("dealer:\n  name: \"\"\n"), 0o644))

	_, err := NewDealerProfileHolder(Config{DealerProfile: path}, zap.NewNop())
	assert.Error(t, err)
}
