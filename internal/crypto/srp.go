// Package crypto implements the cryptographic primitives the handshake and
// framed wire stream depend on: SRP-6a key agreement, the session-key
// derivation it feeds, and the two stream ciphers (RC4, AES-256-CTR) that
// encipher every byte once a session is established.
package crypto

import (
	"crypto/sha1" //nolint:gosec // SRP-6a and the legacy session-key schedule are defined over SHA-1 by the wire protocol
	"crypto/rand"
	"fmt"
	"math/big"
)

// Group1024 is the 1024-bit SRP-6a group (N, g=2) from RFC 5054 §A, the
// group NuoDB's TE hard-codes. The client must use the identical group or
// key agreement silently diverges (S4: server public key mod N is the
// interoperability vector).
var Group1024 = mustGroup(
	"EEAF0AB9ADB38DD69C33F80AFA8FC5E860726187"+
		"75FF3C0B9EA2314C9C256576D674DF7496EA81D3"+
		"383B4813D692C6E0E0D5D8E250B98BE48E495C1D"+
		"6089DAD15DC7D7B46154D6B6CE8EF4AD69B15D49"+
		"82559B297BCF1885C529F566660E57EC68EDBC3C"+
		"05726CC02FD4CBF4976EAA9AFD5138FE8376435B"+
		"9FC61D2FC0EB06E3",
	2,
)

// Group is an SRP group (N, g). NuoDB always negotiates Group1024 today but
// the type leaves room for a future server-advertised group without
// reworking the key-agreement code.
type Group struct {
	N *big.Int
	G *big.Int
	// nLen is the byte length of N, used to pad A/B/S to a fixed width
	// before hashing — RFC 5054's convention for H(PAD(A) || PAD(B)) and
	// friends, adopted here to resolve a padding ambiguity (see DESIGN.md).
	nLen int
}

func mustGroup(nHex string, g int64) *Group {
	n, ok := new(big.Int).SetString(nHex, 16)
	if !ok {
		panic("crypto: invalid SRP group modulus")
	}
	return &Group{N: n, G: big.NewInt(g), nLen: (n.BitLen() + 7) / 8}
}

// pad left-pads b with zero bytes to the group's N width.
func (grp *Group) pad(b []byte) []byte {
	if len(b) >= grp.nLen {
		return b
	}
	out := make([]byte, grp.nLen)
	copy(out[grp.nLen-len(b):], b)
	return out
}

// sha1Sum hashes the concatenation of its arguments.
func sha1Sum(parts ...[]byte) []byte {
	h := sha1.New() //nolint:gosec
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// ClientSecret holds the client's ephemeral SRP key pair for one handshake.
type ClientSecret struct {
	group *Group
	a *big.Int
	A *big.Int
}

// NewClientSecret generates a fresh 256-bit private value `a` and the
// corresponding public value A = g^a mod N.
func NewClientSecret(grp *Group) (*ClientSecret, error) {
	if grp == nil {
		grp = Group1024
	}
	aBytes := make([]byte, 32)
	if _, err := rand.Read(aBytes); err != nil {
		return nil, fmt.Errorf("generating SRP private value: %w", err)
	}
	a := new(big.Int).SetBytes(aBytes)
	A := new(big.Int).Exp(grp.G, a, grp.N)
	return &ClientSecret{group: grp, a: a, A: A}, nil
}

// PublicBytes returns A as an unsigned big-endian byte string for the
// OpenDatabase request.
func (c *ClientSecret) PublicBytes() []byte {
	return c.A.Bytes()
}

// SessionKey computes the shared session key K given the server's public
// value B, the account salt, username and password:
//
//	x = H(salt || H(user || ":" || password))
//	u = H(PAD(A) || PAD(B))
//	k = H(PAD(N) || PAD(g))
//	S = (B - k*g^x)^(a + u*x) mod N
//	K = H(PAD(S)) || H(H(PAD(S))) (two SHA-1 blocks concatenated, 40 bytes)
//
// where PAD left-pads with zero bytes to N's byte width. The 40-byte K is
// long enough to supply both the RC4 key and the AES-256-CTR key+IV (see
// NewStreamPair).
func (c *ClientSecret) SessionKey(serverB *big.Int, salt []byte, user, password string) ([]byte, error) {
	grp := c.group

	if serverB.Sign() == 0 || new(big.Int).Mod(serverB, grp.N).Sign() == 0 {
		return nil, fmt.Errorf("crypto: server public value B is degenerate (B mod N == 0)")
	}

	innerHash := sha1Sum([]byte(user), []byte(":"), []byte(password))
	x := new(big.Int).SetBytes(sha1Sum(salt, innerHash))

	u := new(big.Int).SetBytes(sha1Sum(grp.pad(c.A.Bytes()), grp.pad(serverB.Bytes())))
	if u.Sign() == 0 {
		return nil, fmt.Errorf("crypto: SRP scrambling parameter u is zero")
	}

	k := new(big.Int).SetBytes(sha1Sum(grp.pad(grp.N.Bytes()), grp.pad(grp.G.Bytes())))

	// S = (B - k*g^x)^(a + u*x) mod N
	gx := new(big.Int).Exp(grp.G, x, grp.N)
	kgx := new(big.Int).Mul(k, gx)
	kgx.Mod(kgx, grp.N)

	base := new(big.Int).Sub(serverB, kgx)
	base.Mod(base, grp.N)

	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, c.a)

	s := new(big.Int).Exp(base, exp, grp.N)

	sBytes := grp.pad(s.Bytes())
	block1 := sha1Sum(sBytes)
	block2 := sha1Sum(block1)

	k40 := make([]byte, 0, 40)
	k40 = append(k40, block1...)
	k40 = append(k40, block2...)
	return k40, nil
}

// ClientEvidence computes M1, the client's proof of K:
//
//	M1 = H(H(N) xor H(g) || H(user) || salt || A || B || K)
//
// The wire protocol does not transmit M1 explicitly — it is proven
// implicitly by the Authentication frame (the client encrypts the literal
// string "Success!" with K and the server must be able to decrypt it) — but
// computing it lets tests assert the key schedule against a fixed vector
// independent of the cipher layer.
func ClientEvidence(grp *Group, user string, salt, A, B, K []byte) []byte {
	hN := sha1Sum(grp.N.Bytes())
	hG := sha1Sum(grp.G.Bytes())
	xored := make([]byte, len(hN))
	for i := range xored {
		xored[i] = hN[i] ^ hG[i]
	}
	hUser := sha1Sum([]byte(user))
	return sha1Sum(xored, hUser, salt, A, B, K)
}
