package chain

import "testing"

func TestDecodeDecimals(t *testing.T) {
	parsed, err := erc20DecimalsABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	resp, err := parsed.Methods["decimals"].Outputs.Pack(uint8(18))
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}

	got, err := decodeDecimals(parsed, resp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 18 {
		t.Fatalf("decimals: got %d want 18", got)
	}

	if _, err := decodeDecimals(parsed, []byte{0x01}); err == nil {
		t.Fatalf("expected error for short response")
	}
}
