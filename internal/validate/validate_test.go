package validate

import "testing"

func TestAttributeName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"Id", false},
		{"user_name", false},
		{"Tags[2]", false},
		{"", true},
		{"1leading", true},
		{"drop table", true},
		{"name'; DROP TABLE users;--", true},
	}
	for _, c := range cases {
		err := AttributeName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("AttributeName(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestTableName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"orders", false},
		{"orders-v2.2024", false},
		{"ab", true},
		{"orders; DROP TABLE x", true},
	}
	for _, c := range cases {
		err := TableName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("TableName(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}
