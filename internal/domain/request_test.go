package domain

import (
	"strings"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from RequestStatus
		to   RequestStatus
		want bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusIssued, false},
		{StatusPending, StatusPending, false},
		{StatusAccepted, StatusIssued, true},
		{StatusAccepted, StatusRejected, false},
		{StatusAccepted, StatusPending, false},
		{StatusRejected, StatusIssued, false},
		{StatusRejected, StatusAccepted, false},
		{StatusIssued, StatusIssued, false},
		{StatusIssued, StatusAccepted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRequestStatus_Terminal(t *testing.T) {
	if StatusPending.Terminal() || StatusAccepted.Terminal() {
		t.Error("pending and accepted must not be terminal")
	}
	if !StatusRejected.Terminal() || !StatusIssued.Terminal() {
		t.Error("rejected and issued must be terminal")
	}
	if RequestStatus("archived").Valid() {
		t.Error("unknown status reported as valid")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Amount
		wantErr bool
	}{
		{name: "empty defaults to zero", in: "", want: ZeroAmount},
		{name: "zero", in: "0", want: "0"},
		{name: "leading zeros are dropped", in: "000123", want: "123"},
		{name: "wei beyond int64", in: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{name: "max uint256", in: "115792089237316195423570985008687907853269984665640564039457584007913129639935", want: "115792089237316195423570985008687907853269984665640564039457584007913129639935"},
		{name: "over uint256", in: "115792089237316195423570985008687907853269984665640564039457584007913129639936", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
		{name: "fraction", in: "1.5", wantErr: true},
		{name: "hex", in: "0x10", wantErr: true},
		{name: "exponent", in: "1e18", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAmount_Big(t *testing.T) {
	a := Amount("1000000000000000000000")
	if a.Big().String() != "1000000000000000000000" {
		t.Errorf("Big() = %s", a.Big().String())
	}
}

func TestNormalizeTxHash(t *testing.T) {
	hash := "0xAB" + strings.Repeat("0", 62)
	got, err := NormalizeTxHash(hash)
	if err != nil {
		t.Fatalf("NormalizeTxHash() error = %v", err)
	}
	if got != "0xab"+strings.Repeat("0", 62) {
		t.Errorf("NormalizeTxHash() = %s", got)
	}

	for _, bad := range []string{"", "0x", "0x1234", "ab" + strings.Repeat("0", 62)} {
		if _, err := NormalizeTxHash(bad); err == nil {
			t.Errorf("NormalizeTxHash(%q) expected error", bad)
		}
	}
}

func TestCertificateRequest_Clone(t *testing.T) {
	hash := "bafy"
	now := time.Now()
	orig := &CertificateRequest{ID: "r1", Status: StatusIssued, IPFSHash: &hash, IssuedAt: &now}

	c := orig.Clone()
	*c.IPFSHash = "changed"
	c.IssuedAt = nil

	if *orig.IPFSHash != "bafy" {
		t.Error("Clone() shares the IPFSHash pointer")
	}
	if orig.IssuedAt == nil {
		t.Error("Clone() mutated the original")
	}
	if !orig.Issued() {
		t.Error("Issued() = false for a record with status and fields set")
	}
}
