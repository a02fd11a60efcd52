package seal

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"Mist/internal/bcs"
	"Mist/internal/ledger"
	"Mist/internal/ptb"
	"Mist/internal/wallet"
)

const (
	// PolicyModule and PolicyFunction name the access-policy entry point that
	// key servers dry-run before releasing a key.
	PolicyModule   = "seal_policy"
	PolicyFunction = "seal_approve_tee"

	// ProtocolVersion is sent in the Client-Sdk-Version header.
	ProtocolVersion = "0.5.11"

	// DefaultSessionTTL is the certificate lifetime in minutes.
	DefaultSessionTTL = 10
)

// Certificate binds an ephemeral session key to a user for a short time.
type Certificate struct {
	User         ledger.Address `json:"user"`          // User is the certificate owner
	SessionVK    string         `json:"session_vk"`    // SessionVK is the base64 Ed25519 session public key
	CreationTime uint64         `json:"creation_time"` // CreationTime is in milliseconds since the epoch
	TTLMin       uint16         `json:"ttl_min"`       // TTLMin is the lifetime in minutes
	Signature    string         `json:"signature"`     // Signature is the user's personal-message signature
	MVRName      *string        `json:"mvr_name"`      // MVRName is an optional package name alias
}

// FetchKeyRequest is the body of POST /v1/fetch_key.
type FetchKeyRequest struct {
	PTB                string      `json:"ptb"`                  // PTB is base64 BCS of the policy-check transaction
	EncKey             string      `json:"enc_key"`              // EncKey is the base64 ElGamal encryption key
	EncVerificationKey string      `json:"enc_verification_key"` // EncVerificationKey is the base64 ElGamal verification key
	RequestSignature   string      `json:"request_signature"`    // RequestSignature is the session key's base64 signature
	Certificate        Certificate `json:"certificate"`          // Certificate authorizes the session key
}

// DecryptionKey is one ElGamal-encrypted user secret key.
type DecryptionKey struct {
	ID           string    `json:"id"`            // ID is the base64 identity the key was extracted for
	EncryptedKey [2]string `json:"encrypted_key"` // EncryptedKey holds base64 (c1, c2)
}

// FetchKeyResponse is the success body of POST /v1/fetch_key.
type FetchKeyResponse struct {
	DecryptionKeys []DecryptionKey `json:"decryption_keys"` // DecryptionKeys has one entry per requested identity
}

// CertificateMessage is the text the user signs to authorize a session key.
func CertificateMessage(pkg ledger.ObjectID, ttlMin uint16, creation time.Time, sessionVK ed25519.PublicKey) string {
	return fmt.Sprintf("Accessing keys of package %s for %d mins from %s, session key %s",
		pkg, ttlMin, creation.UTC().Format("2006-01-02 15:04:05 UTC"), base64.StdEncoding.EncodeToString(sessionVK))
}

// RequestMessage is the byte string the session key signs for one request.
func RequestMessage(ptbBytes, encKey, encVerificationKey []byte) []byte {
	return bcs.NewEncoder(len(ptbBytes)+len(encKey)+len(encVerificationKey)+8).
		Vec(ptbBytes).Vec(encKey).Vec(encVerificationKey).Bytes()
}

// PolicyTransaction builds the zero-effect transaction that key servers
// simulate to decide whether id may be decrypted.
func PolicyTransaction(pkg ledger.ObjectID, id []byte) ptb.ProgrammableTransaction {
	b := ptb.NewBuilder()
	arg := b.PureBytes(id)
	b.MoveCall(pkg, PolicyModule, PolicyFunction, nil, arg)

	return b.Finish()
}

// Session is an ephemeral session key with its signed certificate.
type Session struct {
	key     ed25519.PrivateKey
	cert    Certificate
	expires time.Time
}

// NewSession creates a session key for pkg and certifies it with the user key.
func NewSession(user *wallet.Keypair, pkg ledger.ObjectID, ttlMin uint16, now time.Time) (*Session, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate session key:\n%w", err)
	}

	msg := CertificateMessage(pkg, ttlMin, now, pub)

	cert := Certificate{
		User:         user.Address(),
		SessionVK:    base64.StdEncoding.EncodeToString(pub),
		CreationTime: uint64(now.UnixMilli()),
		TTLMin:       ttlMin,
		Signature:    user.SignPersonalMessage([]byte(msg)),
	}

	return &Session{key: priv, cert: cert, expires: now.Add(time.Duration(ttlMin) * time.Minute)}, nil
}

// Valid reports whether the session can still be used at now, keeping a
// margin of one minute so in-flight requests do not cross the expiry.
func (s *Session) Valid(now time.Time) bool {
	return now.Add(time.Minute).Before(s.expires)
}

// Request builds a signed fetch request for the given policy transaction.
func (s *Session) Request(policy ptb.ProgrammableTransaction, transport *ElGamalKey) FetchKeyRequest {
	ptbBytes := policy.Encode()
	encKey := transport.EncryptionKey()
	encVK := transport.VerificationKey()

	sig := ed25519.Sign(s.key, RequestMessage(ptbBytes, encKey, encVK))

	return FetchKeyRequest{
		PTB:                base64.StdEncoding.EncodeToString(ptbBytes),
		EncKey:             base64.StdEncoding.EncodeToString(encKey),
		EncVerificationKey: base64.StdEncoding.EncodeToString(encVK),
		RequestSignature:   base64.StdEncoding.EncodeToString(sig),
		Certificate:        s.cert,
	}
}
