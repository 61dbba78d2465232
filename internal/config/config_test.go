package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RECEIPT_WIDTH", "")
	t.Setenv("LOYALTY_POINT_VALUE", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Port)
	}
	if cfg.ReceiptWidth != 42 {
		t.Fatalf("receipt width = %d, want 42", cfg.ReceiptWidth)
	}
	if cfg.PointValue != 5 || cfg.EarnRate != 100 {
		t.Fatalf("loyalty policy = %v/%v, want 5/100", cfg.PointValue, cfg.EarnRate)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address = %q", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BILL_PREFIX", "DPS")
	t.Setenv("RECEIPT_WIDTH", "48")
	t.Setenv("LOYALTY_POINT_VALUE", "2.5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "60")
	t.Setenv("STORE_NAME", "Sharma General Store")

	cfg := Load()
	if cfg.Port != "9090" || cfg.BillPrefix != "DPS" {
		t.Fatalf("port/prefix = %q/%q", cfg.Port, cfg.BillPrefix)
	}
	if cfg.ReceiptWidth != 48 {
		t.Fatalf("receipt width = %d, want 48", cfg.ReceiptWidth)
	}
	if cfg.PointValue != 2.5 {
		t.Fatalf("point value = %v, want 2.5", cfg.PointValue)
	}
	if cfg.AccessTokenTTLMinutes != 60 {
		t.Fatalf("token ttl = %d, want 60", cfg.AccessTokenTTLMinutes)
	}
	if cfg.Store.Name != "Sharma General Store" {
		t.Fatalf("store name = %q", cfg.Store.Name)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("RECEIPT_WIDTH", "10")
	t.Setenv("LOYALTY_POINT_VALUE", "-3")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "abc")

	cfg := Load()
	if cfg.ReceiptWidth != 42 {
		t.Fatalf("receipt width = %d, want fallback 42", cfg.ReceiptWidth)
	}
	if cfg.PointValue != 5 {
		t.Fatalf("point value = %v, want fallback 5", cfg.PointValue)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d, want fallback 480", cfg.AccessTokenTTLMinutes)
	}
}
