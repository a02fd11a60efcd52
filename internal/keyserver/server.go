// Package keyserver implements a single-master-key Seal key server for local
// deployments and tests. It authenticates session certificates, checks the
// access policy transaction and returns ElGamal-encrypted user secret keys.
package keyserver

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"Mist/internal/bcs"
	"Mist/internal/ledger"
	"Mist/internal/logger"
	"Mist/internal/ptb"
	"Mist/internal/seal"
	"Mist/internal/wallet"
)

const (
	// maxRequestSize is the maximum fetch_key body size in bytes.
	maxRequestSize = 64 << 10

	// maxSessionTTL caps certificate lifetimes in minutes.
	maxSessionTTL = 30

	// clockSkew tolerates certificates created slightly in the future.
	clockSkew = 30 * time.Second

	// approvePrefix is the required prefix of policy function names.
	approvePrefix = "seal_approve"
)

var (
	errMissingVersion  = errors.New("missing Client-Sdk-Version header")
	errCertExpired     = errors.New("certificate expired or not yet valid")
	errCertSignature   = errors.New("certificate signature invalid")
	errRequestSig      = errors.New("request signature invalid")
	errPolicyShape     = errors.New("policy transaction malformed")
	errTransportKey    = errors.New("transport key invalid")
	errPolicyDenied    = errors.New("access denied by policy")
	errPolicyTransport = errors.New("policy check unavailable")
)

// Server is a key server holding one IBE master key.
type Server struct {
	master   *seal.MasterKey  // master extracts user secret keys
	objectID ledger.ObjectID  // objectID identifies this server on the ledger
	pkg      ledger.ObjectID  // pkg is the only package whose policies are honored
	policy   PolicyChecker    // policy decides access for each request
	now      func() time.Time // now is the clock
	server   *http.Server     // server is the underlying HTTP server
}

// New creates a key server for pkg.
func New(master *seal.MasterKey, objectID, pkg ledger.ObjectID, policy PolicyChecker) *Server {
	return &Server{
		master:   master,
		objectID: objectID,
		pkg:      pkg,
		policy:   policy,
		now:      time.Now,
	}
}

// MasterPublicKey returns the compressed G2 public key clients are configured with.
func (s *Server) MasterPublicKey() []byte {
	return s.master.PublicKey()
}

// Handler returns the HTTP handler serving the key-server API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/fetch_key", s.handleFetchKey)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start(addr string) {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("key server started", "addr", addr, "object", s.objectID.Short())

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("key server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"object": s.objectID.String(),
	})
}

// handleFetchKey handles POST /v1/fetch_key requests.
func (s *Server) handleFetchKey(w http.ResponseWriter, r *http.Request) {
	log := logger.With("request", r.Header.Get("Request-Id"))

	if r.Header.Get("Client-Sdk-Version") == "" {
		writeError(w, http.StatusBadRequest, errMissingVersion.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req seal.FetchKeyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	resp, err := s.fetchKeys(r.Context(), &req)
	if err != nil {
		log.Warn("fetch_key rejected", "error", err)
		writeError(w, statusFor(err), err.Error())

		return
	}

	log.Debug("fetch_key served", "user", req.Certificate.User.String(), "keys", len(resp.DecryptionKeys))
	writeJSON(w, http.StatusOK, resp)
}

// fetchKeys authenticates req, checks the policy and extracts one key per identity.
func (s *Server) fetchKeys(ctx context.Context, req *seal.FetchKeyRequest) (*seal.FetchKeyResponse, error) {
	sessionVK, err := s.verifyCertificate(req.Certificate)
	if err != nil {
		return nil, err
	}

	ptbBytes, err1 := base64.StdEncoding.DecodeString(req.PTB)
	encKey, err2 := base64.StdEncoding.DecodeString(req.EncKey)
	encVK, err3 := base64.StdEncoding.DecodeString(req.EncVerificationKey)
	sig, err4 := base64.StdEncoding.DecodeString(req.RequestSignature)

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, fmt.Errorf("%w: encoding:\n%w", errRequestSig, err)
	}

	if !ed25519.Verify(sessionVK, seal.RequestMessage(ptbBytes, encKey, encVK), sig) {
		return nil, errRequestSig
	}

	if !seal.VerifyElGamalKeys(encKey, encVK) {
		return nil, errTransportKey
	}

	tx, ids, err := s.policyIdentities(ptbBytes)
	if err != nil {
		return nil, err
	}

	if err := s.policy.Check(ctx, req.Certificate.User, tx); err != nil {
		return nil, err
	}

	resp := &seal.FetchKeyResponse{DecryptionKeys: make([]seal.DecryptionKey, 0, len(ids))}

	for _, id := range ids {
		c1, c2, err := seal.ElGamalEncrypt(encKey, s.master.Extract(seal.Identity(s.pkg, id)))
		if err != nil {
			return nil, fmt.Errorf("%w:\n%w", errTransportKey, err)
		}

		resp.DecryptionKeys = append(resp.DecryptionKeys, seal.DecryptionKey{
			ID: base64.StdEncoding.EncodeToString(id),
			EncryptedKey: [2]string{
				base64.StdEncoding.EncodeToString(c1),
				base64.StdEncoding.EncodeToString(c2),
			},
		})
	}

	return resp, nil
}

// verifyCertificate checks the lifetime and user signature of a certificate
// and returns its session key.
func (s *Server) verifyCertificate(cert seal.Certificate) (ed25519.PublicKey, error) {
	if cert.TTLMin == 0 || cert.TTLMin > maxSessionTTL {
		return nil, fmt.Errorf("%w: ttl %d", errCertExpired, cert.TTLMin)
	}

	now := s.now()
	created := time.UnixMilli(int64(cert.CreationTime))

	if created.After(now.Add(clockSkew)) || !now.Before(created.Add(time.Duration(cert.TTLMin)*time.Minute)) {
		return nil, errCertExpired
	}

	vk, err := base64.StdEncoding.DecodeString(cert.SessionVK)
	if err != nil || len(vk) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: session key", errCertSignature)
	}

	msg := seal.CertificateMessage(s.pkg, cert.TTLMin, created, vk)

	signer, err := wallet.Verify([]byte(msg), cert.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w:\n%w", errCertSignature, err)
	}

	if signer != cert.User {
		return nil, fmt.Errorf("%w: signed by %s", errCertSignature, signer)
	}

	return vk, nil
}

// policyIdentities decodes a policy transaction and returns the identities it
// asks for. Every
// command must be a seal_approve call into the configured package whose first
// argument is a pure vector<u8> input.
func (s *Server) policyIdentities(ptbBytes []byte) (*ptb.ProgrammableTransaction, [][]byte, error) {
	tx, err := ptb.DecodeProgrammable(ptbBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("%w:\n%w", errPolicyShape, err)
	}

	if len(tx.Commands) == 0 {
		return nil, nil, fmt.Errorf("%w: no commands", errPolicyShape)
	}

	ids := make([][]byte, 0, len(tx.Commands))

	for i, cmd := range tx.Commands {
		if cmd.Kind != ptb.CmdMoveCall {
			return nil, nil, fmt.Errorf("%w: command %d is not a move call", errPolicyShape, i)
		}

		call := cmd.Call
		if call.Package != s.pkg || !strings.HasPrefix(call.Function, approvePrefix) {
			return nil, nil, fmt.Errorf("%w: command %d calls %s::%s::%s", errPolicyShape, i, call.Package.Short(), call.Module, call.Function)
		}

		if len(call.Arguments) == 0 || call.Arguments[0].Kind != ptb.ArgInput || int(call.Arguments[0].Index) >= len(tx.Inputs) {
			return nil, nil, fmt.Errorf("%w: command %d has no identity input", errPolicyShape, i)
		}

		in := tx.Inputs[call.Arguments[0].Index]
		if in.Kind != ptb.CallArgPure {
			return nil, nil, fmt.Errorf("%w: command %d identity is not pure", errPolicyShape, i)
		}

		d := bcs.NewDecoder(in.Pure)
		id := d.Vec()

		if d.Err() != nil || d.Remaining() != 0 {
			return nil, nil, fmt.Errorf("%w: command %d identity is not vector<u8>", errPolicyShape, i)
		}

		ids = append(ids, id)
	}

	return tx, ids, nil
}

// statusFor maps a rejection to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errPolicyTransport):
		return http.StatusServiceUnavailable
	case errors.Is(err, errPolicyDenied), errors.Is(err, errCertExpired), errors.Is(err, errCertSignature), errors.Is(err, errRequestSig):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
