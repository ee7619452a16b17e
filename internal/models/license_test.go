package models

import (
	"encoding/json"
	"strings"
	"testing"
)

const wallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func TestFingerprintWallet(t *testing.T) {
	fp := FingerprintWallet(wallet)
	if len(fp) != 16 {
		t.Errorf("fingerprint length: got %d, want 16", len(fp))
	}
	if fp != FingerprintWallet(wallet) {
		t.Error("fingerprint must be deterministic")
	}
	if fp == FingerprintWallet(wallet+"x") {
		t.Error("different wallets must not collide on a one-character change")
	}
	if strings.Contains(wallet, fp) {
		t.Error("fingerprint must not be a substring of the address")
	}
}

func TestShortWallet(t *testing.T) {
	short := ShortWallet(wallet)
	if short != "7xKXtg2C...gAsU" {
		t.Errorf("short form: got %q", short)
	}
	if got := ShortWallet("tooshort"); got != "tooshort" {
		t.Errorf("short input should pass through, got %q", got)
	}
}

func TestValidWallet(t *testing.T) {
	cases := []struct {
		wallet string
		want   bool
	}{
		{wallet, true},
		{strings.Repeat("a", 32), true},
		{strings.Repeat("a", 44), true},
		{strings.Repeat("a", 31), false},
		{strings.Repeat("a", 45), false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidWallet(tc.wallet); got != tc.want {
			t.Errorf("ValidWallet(%d chars): got %v, want %v", len(tc.wallet), got, tc.want)
		}
	}
}

func TestLicenseJSONHidesRawWallet(t *testing.T) {
	lic := License{Key: "SOLPUMPAI-key", Wallet: wallet, WalletHash: FingerprintWallet(wallet)}
	out, err := json.Marshal(lic)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(out), wallet) {
		t.Error("serialized license must never carry the raw wallet address")
	}
}
