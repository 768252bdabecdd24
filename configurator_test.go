package grant

import "testing"

func TestEntityConfiguratorConnectsTo(t *testing.T) {
	rt := NewRuntime()
	ec := Configure("orders").On(rt).ConnectsTo("orders_db")
	if ec.Database() != "orders_db" {
		t.Errorf("Database() = %q, want %q", ec.Database(), "orders_db")
	}
}

func TestEntityConfiguratorDefaultsToDefaultDatabase(t *testing.T) {
	ec := Configure("widgets")
	if ec.Database() != defaultDatabase {
		t.Errorf("Database() = %q, want %q", ec.Database(), defaultDatabase)
	}
}

func TestEntityConfiguratorShardsByRegistersWithRuntime(t *testing.T) {
	rt := NewRuntime()
	strategy := NewHashShardStrategy(4, "")
	Configure("orders").On(rt).ShardsBy(strategy, "customer_id")

	cfg, ok := rt.Shards().ConfigFor("orders")
	if !ok {
		t.Fatal("expected ShardsBy to register a ShardConfig for 'orders'")
	}
	if len(cfg.KeyColumns) != 1 || cfg.KeyColumns[0] != "customer_id" {
		t.Errorf("KeyColumns = %v, want [customer_id]", cfg.KeyColumns)
	}
	if cfg.Strategy != strategy {
		t.Error("expected registered strategy to be the one passed to ShardsBy")
	}
}

func TestEntityConfiguratorEncryptsRegistersCipher(t *testing.T) {
	rt := NewRuntime()
	keys := testKeys()

	err := Configure("users").On(rt).Encrypts(keys, EncryptedAttribute{Name: "ssn"})
	if err != nil {
		t.Fatalf("Encrypts: %v", err)
	}

	c, ok := rt.Encryption().Cipher("users", "ssn")
	if !ok {
		t.Fatal("expected Encrypts to register a Cipher for users.ssn")
	}
	if c == nil {
		t.Fatal("expected a non-nil Cipher")
	}
}

func TestForeignKeyFromTableSingularizes(t *testing.T) {
	cases := map[string]string{
		"users":      "user_id",
		"orders":     "order_id",
		"categories": "category_id",
	}
	for table, want := range cases {
		if got := foreignKeyFromTable(table); got != want {
			t.Errorf("foreignKeyFromTable(%q) = %q, want %q", table, got, want)
		}
	}
}
