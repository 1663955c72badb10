package crypto

import (
	"bytes"
	"math/big"
	"testing"
)

// TestSessionKeyAgreement reproduces a full SRP-6a exchange between a
// simulated server (using the textbook formulas directly) and the client
// implementation, and checks both sides land on the same K.
func TestSessionKeyAgreement(t *testing.T) {
	grp := Group1024
	const user = "dba"
	const password = "goalie"

	salt := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	// Server side: v = g^x mod N, B = (k*v + g^b) mod N.
	innerHash := sha1Sum([]byte(user), []byte(":"), []byte(password))
	x := new(big.Int).SetBytes(sha1Sum(salt, innerHash))
	v := new(big.Int).Exp(grp.G, x, grp.N)

	b, err := randomBigInt(32)
	if err != nil {
		t.Fatalf("server random: %v", err)
	}
	k := new(big.Int).SetBytes(sha1Sum(grp.pad(grp.N.Bytes()), grp.pad(grp.G.Bytes())))

	gb := new(big.Int).Exp(grp.G, b, grp.N)
	kv := new(big.Int).Mul(k, v)
	B := new(big.Int).Add(kv, gb)
	B.Mod(B, grp.N)

	client, err := NewClientSecret(grp)
	if err != nil {
		t.Fatalf("NewClientSecret: %v", err)
	}

	clientK, err := client.SessionKey(B, salt, user, password)
	if err != nil {
		t.Fatalf("client SessionKey: %v", err)
	}

	// Server computes S = (A * v^u)^b mod N, then the same K schedule.
	u := new(big.Int).SetBytes(sha1Sum(grp.pad(client.A.Bytes()), grp.pad(B.Bytes())))
	vu := new(big.Int).Exp(v, u, grp.N)
	avu := new(big.Int).Mul(client.A, vu)
	avu.Mod(avu, grp.N)
	s := new(big.Int).Exp(avu, b, grp.N)

	sBytes := grp.pad(s.Bytes())
	block1 := sha1Sum(sBytes)
	block2 := sha1Sum(block1)
	serverK := append(append([]byte{}, block1...), block2...)

	if !bytes.Equal(clientK, serverK) {
		t.Fatalf("client and server derived different session keys:\nclient=%x\nserver=%x", clientK, serverK)
	}
	if len(clientK) != 40 {
		t.Fatalf("expected a 40-byte session key, got %d", len(clientK))
	}
}

func TestSessionKeyRejectsDegenerateB(t *testing.T) {
	client, err := NewClientSecret(Group1024)
	if err != nil {
		t.Fatalf("NewClientSecret: %v", err)
	}
	if _, err := client.SessionKey(big.NewInt(0), []byte{1, 2, 3}, "dba", "goalie"); err == nil {
		t.Fatal("expected an error for B == 0")
	}
	zeroModN := new(big.Int).Mul(Group1024.N, big.NewInt(2))
	if _, err := client.SessionKey(zeroModN, []byte{1, 2, 3}, "dba", "goalie"); err == nil {
		t.Fatal("expected an error for B == 0 mod N")
	}
}

func randomBigInt(n int) (*big.Int, error) {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*31 + 7) // deterministic, test-only "randomness"
	}
	return new(big.Int).SetBytes(buf), nil
}
