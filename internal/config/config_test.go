package config

import "testing"

func TestPersistence_EnabledRequiresDialectAndDatasource(t *testing.T) {
	cases := []struct {
		name string
		p    Persistence
		want bool
	}{
		{"both set", Persistence{Dialect: "sqlite", Datasource: ":memory:"}, true},
		{"missing dialect", Persistence{Datasource: ":memory:"}, false},
		{"missing datasource", Persistence{Dialect: "sqlite"}, false},
		{"zero value", Persistence{}, false},
	}
	for _, c := range cases {
		if got := c.p.Enabled(); got != c.want {
			t.Errorf("%s: Enabled() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestPersistence_SQLStoreConfigCarriesAllFields(t *testing.T) {
	p := Persistence{
		Dialect:       "postgres",
		Datasource:    "postgres://localhost/db",
		TablePrefix:   "aas_",
		EncryptionKey: "k",
	}
	sc := p.SQLStoreConfig()
	if string(sc.Dialect) != p.Dialect {
		t.Errorf("Dialect = %v, want %v", sc.Dialect, p.Dialect)
	}
	if sc.Datasource != p.Datasource {
		t.Errorf("Datasource = %v, want %v", sc.Datasource, p.Datasource)
	}
	if sc.TablePrefix != p.TablePrefix {
		t.Errorf("TablePrefix = %v, want %v", sc.TablePrefix, p.TablePrefix)
	}
	if sc.EncryptionKey != p.EncryptionKey {
		t.Errorf("EncryptionKey = %v, want %v", sc.EncryptionKey, p.EncryptionKey)
	}
}
