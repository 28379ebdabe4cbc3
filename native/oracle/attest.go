package oracle

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"betpool/crypto"
)

// OddsProofDomainV1 is the domain separator signed into every odds
// attestation, preventing cross-protocol signature reuse.
const OddsProofDomainV1 = "BETPOOL_ODDS_V1"

// RoleOddsSigner is the role an address needs for its odds attestations to be
// accepted.
const RoleOddsSigner = "ROLE_ODDS_SIGNER"

// OddsProof is a signed quote binding a fixed-point odds multiplier to a
// specific market and side until an expiry timestamp. Bets are only accepted
// at odds carried by a valid proof, so a stale or tampered quote can never
// reach the payout curve.
type OddsProof struct {
	Domain    string
	MarketID  [32]byte
	Side      string
	Odds      *big.Int
	Expiry    int64
	ProofID   string
	Signature []byte
}

// NewOddsProof assembles a proof from raw submission values. The proof ID is
// generated here and used for audit correlation only; it is not part of the
// signed message.
func NewOddsProof(domain string, marketID [32]byte, side string, odds *big.Int, expiry int64, signature []byte) (*OddsProof, error) {
	trimmedDomain := strings.TrimSpace(domain)
	if trimmedDomain == "" {
		return nil, fmt.Errorf("odds proof: domain required")
	}
	canonicalSide := strings.ToLower(strings.TrimSpace(side))
	if canonicalSide == "" {
		return nil, fmt.Errorf("odds proof: side required")
	}
	if odds == nil || odds.Sign() <= 0 {
		return nil, fmt.Errorf("odds proof: odds must be positive")
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("odds proof: expiry required")
	}
	proof := &OddsProof{
		Domain:   trimmedDomain,
		MarketID: marketID,
		Side:     canonicalSide,
		Odds:     new(big.Int).Set(odds),
		Expiry:   expiry,
		ProofID:  uuid.NewString(),
	}
	if len(signature) > 0 {
		proof.Signature = append([]byte(nil), signature...)
	}
	return proof, nil
}

// CanonicalMessage renders the exact byte string covered by the signature.
func (p *OddsProof) CanonicalMessage() (string, error) {
	if p == nil {
		return "", fmt.Errorf("odds proof: nil proof")
	}
	if p.Domain == "" || p.Side == "" || p.Odds == nil || p.Expiry <= 0 {
		return "", fmt.Errorf("odds proof: incomplete proof")
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d",
		p.Domain,
		hex.EncodeToString(p.MarketID[:]),
		p.Side,
		p.Odds.String(),
		p.Expiry,
	), nil
}

// SigningHash returns the keccak256 digest of the canonical message.
func (p *OddsProof) SigningHash() ([32]byte, error) {
	message, err := p.CanonicalMessage()
	if err != nil {
		return [32]byte{}, err
	}
	return ethcrypto.Keccak256Hash([]byte(message)), nil
}

// Sign attaches a recoverable secp256k1 signature over the canonical
// message. Used by the quoting service and by tests.
func (p *OddsProof) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("odds proof: nil signing key")
	}
	hash, err := p.SigningHash()
	if err != nil {
		return err
	}
	sig, err := ethcrypto.Sign(hash[:], key.PrivateKey)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// RecoverSigner returns the address that produced the proof's signature.
func (p *OddsProof) RecoverSigner() ([20]byte, error) {
	if p == nil || len(p.Signature) != 65 {
		return [20]byte{}, fmt.Errorf("odds proof: signature must be 65 bytes")
	}
	hash, err := p.SigningHash()
	if err != nil {
		return [20]byte{}, err
	}
	pub, err := ethcrypto.SigToPub(hash[:], p.Signature)
	if err != nil {
		return [20]byte{}, fmt.Errorf("odds proof: recover signer: %w", err)
	}
	var addr [20]byte
	copy(addr[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return addr, nil
}

// VerifyOddsProof checks that the proof covers exactly the supplied market,
// side and odds, has not expired, and was signed by an address holding the
// odds-signer role.
func VerifyOddsProof(proof *OddsProof, marketID [32]byte, side string, odds *big.Int, now int64, roles RoleChecker) error {
	if proof == nil {
		return fmt.Errorf("%w: proof required", ErrInvalidProof)
	}
	if roles == nil {
		return errNilRoles
	}
	if proof.Domain != OddsProofDomainV1 {
		return fmt.Errorf("%w: unsupported domain %q", ErrInvalidProof, proof.Domain)
	}
	if proof.MarketID != marketID {
		return fmt.Errorf("%w: market mismatch", ErrInvalidProof)
	}
	canonicalSide := strings.ToLower(strings.TrimSpace(side))
	if proof.Side != canonicalSide {
		return fmt.Errorf("%w: side mismatch", ErrInvalidProof)
	}
	if odds == nil || proof.Odds == nil || proof.Odds.Cmp(odds) != 0 {
		return fmt.Errorf("%w: odds mismatch", ErrInvalidProof)
	}
	if now >= proof.Expiry {
		return fmt.Errorf("%w: expired at %d", ErrInvalidProof, proof.Expiry)
	}
	signer, err := proof.RecoverSigner()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !roles.HasRole(RoleOddsSigner, signer) {
		return fmt.Errorf("%w: signer %x lacks the odds-signer role", ErrInvalidProof, signer)
	}
	return nil
}
