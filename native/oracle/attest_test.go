package oracle

import (
	"math/big"
	"strings"
	"testing"

	"betpool/core/state"
	"betpool/crypto"
	"betpool/storage"
)

func signedProof(t *testing.T, key *crypto.PrivateKey, marketID [32]byte, side string, odds *big.Int, expiry int64) *OddsProof {
	t.Helper()
	proof, err := NewOddsProof(OddsProofDomainV1, marketID, side, odds, expiry, nil)
	if err != nil {
		t.Fatalf("new proof: %v", err)
	}
	if err := proof.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return proof
}

func oddsSignerFixture(t *testing.T) (*crypto.PrivateKey, *state.Manager) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	manager := state.NewManager(storage.NewMemDB())
	if err := manager.GrantRole(RoleOddsSigner, key.PubKey().Address().Raw()); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	return key, manager
}

func TestVerifyOddsProof(t *testing.T) {
	key, manager := oddsSignerFixture(t)
	marketID := [32]byte{0x01}
	odds := big.NewInt(2_000_000_000_000_000_000)
	proof := signedProof(t, key, marketID, "YES", odds, 2_000)

	if err := VerifyOddsProof(proof, marketID, "yes", odds, 1_000, manager); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if proof.ProofID == "" {
		t.Fatal("proof ID must be assigned")
	}
}

func TestVerifyOddsProofRecoversSigner(t *testing.T) {
	key, _ := oddsSignerFixture(t)
	proof := signedProof(t, key, [32]byte{0x01}, "yes", big.NewInt(5), 2_000)
	signer, err := proof.RecoverSigner()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != key.PubKey().Address().Raw() {
		t.Fatal("recovered signer mismatch")
	}
}

func TestVerifyOddsProofRejections(t *testing.T) {
	key, manager := oddsSignerFixture(t)
	marketID := [32]byte{0x01}
	odds := big.NewInt(5)

	t.Run("expired", func(t *testing.T) {
		proof := signedProof(t, key, marketID, "yes", odds, 900)
		if err := VerifyOddsProof(proof, marketID, "yes", odds, 1_000, manager); err == nil {
			t.Fatal("expired proof must fail")
		}
	})
	t.Run("market mismatch", func(t *testing.T) {
		proof := signedProof(t, key, marketID, "yes", odds, 2_000)
		if err := VerifyOddsProof(proof, [32]byte{0xFF}, "yes", odds, 1_000, manager); err == nil {
			t.Fatal("wrong market must fail")
		}
	})
	t.Run("side mismatch", func(t *testing.T) {
		proof := signedProof(t, key, marketID, "yes", odds, 2_000)
		if err := VerifyOddsProof(proof, marketID, "no", odds, 1_000, manager); err == nil {
			t.Fatal("wrong side must fail")
		}
	})
	t.Run("odds mismatch", func(t *testing.T) {
		proof := signedProof(t, key, marketID, "yes", odds, 2_000)
		if err := VerifyOddsProof(proof, marketID, "yes", big.NewInt(6), 1_000, manager); err == nil {
			t.Fatal("wrong odds must fail")
		}
	})
	t.Run("wrong domain", func(t *testing.T) {
		proof, err := NewOddsProof("SOME_OTHER_DOMAIN", marketID, "yes", odds, 2_000, nil)
		if err != nil {
			t.Fatalf("new proof: %v", err)
		}
		if err := proof.Sign(key); err != nil {
			t.Fatalf("sign: %v", err)
		}
		if err := VerifyOddsProof(proof, marketID, "yes", odds, 1_000, manager); err == nil {
			t.Fatal("foreign domain must fail")
		}
	})
	t.Run("unauthorized signer", func(t *testing.T) {
		rogue, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		proof := signedProof(t, rogue, marketID, "yes", odds, 2_000)
		if err := VerifyOddsProof(proof, marketID, "yes", odds, 1_000, manager); err == nil {
			t.Fatal("signer without role must fail")
		}
	})
	t.Run("tampered odds", func(t *testing.T) {
		proof := signedProof(t, key, marketID, "yes", odds, 2_000)
		proof.Odds = big.NewInt(6)
		if err := VerifyOddsProof(proof, marketID, "yes", big.NewInt(6), 1_000, manager); err == nil {
			t.Fatal("tampered proof must fail")
		}
	})
}

func TestCanonicalMessageShape(t *testing.T) {
	proof, err := NewOddsProof(OddsProofDomainV1, [32]byte{0xAB}, "yes", big.NewInt(5), 2_000, nil)
	if err != nil {
		t.Fatalf("new proof: %v", err)
	}
	message, err := proof.CanonicalMessage()
	if err != nil {
		t.Fatalf("canonical message: %v", err)
	}
	if !strings.HasPrefix(message, OddsProofDomainV1+"|") {
		t.Fatalf("message must start with the domain separator: %q", message)
	}
	if parts := strings.Split(message, "|"); len(parts) != 5 {
		t.Fatalf("message must have 5 segments: %q", message)
	}
}
