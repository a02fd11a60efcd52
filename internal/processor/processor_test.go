package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	blst "github.com/supranational/blst/bindings/go"

	"Mist/internal/journal"
	"Mist/internal/ledger"
	"Mist/internal/route"
	"Mist/internal/seal"
	"Mist/internal/settle"
	"Mist/internal/wallet"
)

var (
	testPackage   = ledger.ObjectID{0: 0xaa, 31: 0x01}
	testServer    = ledger.ObjectID{0: 0x5e, 31: 0x01}
	testNow       = time.UnixMilli(1_700_000_000_000)
	testOutput    = ledger.Address{0: 0x0a, 31: 0x01}
	testRemainder = ledger.Address{0: 0x0b, 31: 0x02}
)

// localDecrypter decrypts with an in-memory master key in place of a key-server quorum.
type localDecrypter struct {
	master *seal.MasterKey
	fail   map[string]error // fail maps an identity to the error returned for it
	calls  int
}

func (d *localDecrypter) Decrypt(_ context.Context, obj *seal.EncryptedObject) ([]byte, error) {
	d.calls++

	if err := d.fail[string(obj.ID)]; err != nil {
		return nil, err
	}

	keys := make(map[ledger.ObjectID]*blst.P1Affine, len(obj.Services))
	for _, s := range obj.Services {
		keys[s.ObjectID] = d.master.Extract(obj.FullID())
	}

	return seal.DecryptWithKeys(obj, keys)
}

// fakeSettler records settlements; errs maps an intent to a failure.
type fakeSettler struct {
	swaps []settle.Swap
	plans []route.Plan
	errs  map[ledger.ObjectID]error
}

func (s *fakeSettler) Settle(_ context.Context, plan route.Plan, swap settle.Swap) (string, error) {
	if err := s.errs[swap.Intent]; err != nil {
		return "", err
	}

	s.swaps = append(s.swaps, swap)
	s.plans = append(s.plans, plan)

	return fmt.Sprintf("Digest%d", len(s.swaps)), nil
}

type fixture struct {
	t         *testing.T
	user      *wallet.Keypair
	decrypter *localDecrypter
	settler   *fakeSettler
	pipeline  *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	master, err := seal.GenerateMasterKey(bytes.Repeat([]byte{3}, 32))
	if err != nil {
		t.Fatalf("master key: %v", err)
	}

	user, err := wallet.KeypairFromSeed(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}

	f := &fixture{
		t:         t,
		user:      user,
		decrypter: &localDecrypter{master: master, fail: make(map[string]error)},
		settler:   &fakeSettler{errs: make(map[ledger.ObjectID]error)},
	}

	f.pipeline = NewPipeline(f.decrypter, route.NewRouter(1), f.settler, nil)
	f.pipeline.now = func() time.Time { return testNow }

	return f
}

func nullifier(b byte) [NullifierSize]byte {
	var n [NullifierSize]byte
	for i := range n {
		n[i] = b
	}

	return n
}

// details returns signed swap details for n and amount.
func (f *fixture) details(signer *wallet.Keypair, n [NullifierSize]byte, amount string) *DecryptedSwapDetails {
	d := &DecryptedSwapDetails{
		Nullifier:        hex.EncodeToString(n[:]),
		InputAmount:      amount,
		OutputStealth:    testOutput.String(),
		RemainderStealth: testRemainder.String(),
	}
	d.Signature = signer.SignPersonalMessage(d.SignedMessage())

	return d
}

// encrypt seals v as JSON under identity and returns the on-chain field.
func (f *fixture) encrypt(identity string, v any) []byte {
	f.t.Helper()

	plaintext, err := json.Marshal(v)
	if err != nil {
		f.t.Fatalf("marshal: %v", err)
	}

	servers := []seal.ServerKey{{ObjectID: testServer, PublicKey: f.decrypter.master.PublicKey()}}

	obj, err := seal.Encrypt(testPackage, []byte(identity), servers, 1, plaintext, nil)
	if err != nil {
		f.t.Fatalf("encrypt: %v", err)
	}

	return []byte(base64.StdEncoding.EncodeToString(obj.Marshal()))
}

func (f *fixture) intent(b byte, d *DecryptedSwapDetails) *ledger.Intent {
	return &ledger.Intent{
		ID:               ledger.ObjectID{0: 0x1e, 31: b},
		EncryptedDetails: f.encrypt(fmt.Sprintf("intent-%d", b), d),
		TokenIn:          route.NativeCoinType,
		TokenOut:         route.NativeCoinType,
		DeadlineMs:       uint64(testNow.Add(time.Hour).UnixMilli()),
	}
}

// =============================================================================
// Details
// =============================================================================

// TestSignedMessageFormat verifies the exact text a wallet signs.
func TestSignedMessageFormat(t *testing.T) {
	d := DecryptedSwapDetails{
		Nullifier:        "ab",
		InputAmount:      "100",
		OutputStealth:    "0x<1>",
		RemainderStealth: "0x2",
		Signature:        "ignored",
	}

	want := `{"nullifier":"ab","inputAmount":"100","outputStealth":"0x<1>","remainderStealth":"0x2"}`
	if got := string(d.SignedMessage()); got != want {
		t.Fatalf("message = %s", got)
	}
}

// TestParseDetails verifies field validation.
func TestParseDetails(t *testing.T) {
	f := newFixture(t)
	d := f.details(f.user, nullifier(7), "1000000000")

	raw, _ := json.Marshal(d)

	got, err := ParseDetails(raw)
	if err != nil {
		t.Fatalf("ParseDetails: %v", err)
	}

	if got.Nullifier != nullifier(7) || got.InputAmount != 1_000_000_000 || got.OutputStealth != testOutput {
		t.Fatalf("details = %+v", got)
	}

	bad := []func(*DecryptedSwapDetails){
		func(d *DecryptedSwapDetails) { d.Nullifier = "abcd" },
		func(d *DecryptedSwapDetails) { d.InputAmount = "-5" },
		func(d *DecryptedSwapDetails) { d.InputAmount = "18446744073709551616" },
		func(d *DecryptedSwapDetails) { d.OutputStealth = "stealth" },
		func(d *DecryptedSwapDetails) { d.Signature = "" },
	}

	for i, mutate := range bad {
		c := *d
		mutate(&c)
		raw, _ := json.Marshal(c)

		if _, err := ParseDetails(raw); !errors.Is(err, ErrMalformedDetails) {
			t.Errorf("case %d: expected ErrMalformedDetails, got %v", i, err)
		}
	}

	if _, err := ParseDetails([]byte("not json")); !errors.Is(err, ErrMalformedDetails) {
		t.Errorf("expected ErrMalformedDetails, got %v", err)
	}
}

// TestDecodeEnvelope verifies the three envelope layers are checked.
func TestDecodeEnvelope(t *testing.T) {
	for name, field := range map[string][]byte{
		"utf8":   {0xff, 0xfe},
		"base64": []byte("!!!"),
		"bcs":    []byte(base64.StdEncoding.EncodeToString([]byte{0, 1, 2})),
	} {
		if _, err := DecodeEnvelope(field); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("%s: expected ErrMalformedEnvelope, got %v", name, err)
		}
	}
}

// TestFingerprint verifies fingerprints are stable and do not contain the nullifier.
func TestFingerprint(t *testing.T) {
	n := nullifier(0x42)

	if Fingerprint(n) != Fingerprint(n) || Fingerprint(n) == Fingerprint(nullifier(0x43)) {
		t.Fatal("fingerprint not stable or not distinct")
	}

	if strings.Contains(hex.EncodeToString(n[:]), Fingerprint(n)) {
		t.Fatal("fingerprint leaks nullifier bytes")
	}
}

// =============================================================================
// Classification
// =============================================================================

// TestClassify verifies every error family maps to its kind.
func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, Settled},
		{fmt.Errorf("x:\n%w", ErrExpired), Expired},
		{fmt.Errorf("x:\n%w", ledger.ErrTransport), Transient},
		{context.DeadlineExceeded, Transient},
		{errors.New("something unexpected"), Transient},
		{fmt.Errorf("x:\n%w", seal.ErrDecryptionUnavailable), DecryptionUnavailable},
		{wallet.ErrSignatureEncoding, Malformed},
		{wallet.ErrSignatureLength, Malformed},
		{wallet.ErrUnsupportedScheme, Malformed},
		{seal.ErrMalformedObject, Malformed},
		{route.ErrZeroAmount, Malformed},
		{wallet.ErrInvalidSignature, Unauthorized},
		{ErrOwnerMismatch, Unauthorized},
		{&settle.AbortError{Code: 2, HasCode: true}, Rejected},
		{route.ErrUnsupportedDirection, Rejected},
		{ErrUnknownNullifier, Rejected},
		{fmt.Errorf("fetch intent:\n%w", fmt.Errorf("%w:\n%w", ledger.ErrIntentGone, ledger.ErrObjectNotFound)), Consumed},
		{fmt.Errorf("list deposits:\n%w", ledger.ErrObjectNotFound), Transient},
		{fmt.Errorf("%w:\n%w", settle.ErrPriceUnavailable, ledger.ErrUnexpectedShape), Transient},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}

	for _, k := range Kinds {
		retry := k == Transient || k == DecryptionUnavailable
		if k.Terminal() == retry {
			t.Errorf("%s terminal = %v", k, k.Terminal())
		}
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// TestSameAssetPassthrough verifies a same-asset intent settles for the exact input amount.
func TestSameAssetPassthrough(t *testing.T) {
	f := newFixture(t)
	n := nullifier(9)

	res := f.pipeline.Process(context.Background(), f.intent(1, f.details(f.user, n, "1000000000")))
	if res.Kind != Settled || res.Err != nil || res.TxDigest != "Digest1" {
		t.Fatalf("result = %+v", res)
	}

	p, ok := f.settler.plans[0].(route.Passthrough)
	if !ok || p.OutputAmount() != 1_000_000_000 {
		t.Fatalf("plan = %#v", f.settler.plans[0])
	}

	swap := f.settler.swaps[0]
	if swap.RemainderAmount != 0 || !bytes.Equal(swap.Nullifier, n[:]) || swap.OutputStealth != testOutput || swap.RemainderStealth != testRemainder {
		t.Fatalf("swap = %+v", swap)
	}

	if res.Signer != f.user.Address() {
		t.Fatalf("signer = %s", res.Signer)
	}
}

// TestExpiredSkipsDecryption verifies an intent one millisecond past its deadline
// is skipped before decryption and signature verification.
func TestExpiredSkipsDecryption(t *testing.T) {
	f := newFixture(t)

	intent := f.intent(1, f.details(f.user, nullifier(1), "5"))
	intent.DeadlineMs = uint64(testNow.UnixMilli() - 1)

	res := f.pipeline.Process(context.Background(), intent)
	if res.Kind != Expired || !res.Kind.Terminal() {
		t.Fatalf("result = %+v", res)
	}

	if f.decrypter.calls != 0 || len(f.settler.swaps) != 0 {
		t.Fatalf("decrypt calls = %d, settlements = %d", f.decrypter.calls, len(f.settler.swaps))
	}

	// The deadline itself is still valid.
	intent.DeadlineMs = uint64(testNow.UnixMilli())
	if res := f.pipeline.Process(context.Background(), intent); res.Kind != Settled {
		t.Fatalf("at deadline: %+v", res)
	}
}

// TestSpentNullifierRejected verifies a ledger abort is terminal.
func TestSpentNullifierRejected(t *testing.T) {
	f := newFixture(t)
	intent := f.intent(1, f.details(f.user, nullifier(1), "5"))

	f.settler.errs[intent.ID] = fmt.Errorf("execute:\n%w", &settle.AbortError{Digest: "D", Code: 2, HasCode: true})

	res := f.pipeline.Process(context.Background(), intent)
	if res.Kind != Rejected || !res.Kind.Terminal() {
		t.Fatalf("result = %+v", res)
	}
}

// TestDecryptionUnavailableRetryable verifies a missing quorum is not terminal.
func TestDecryptionUnavailableRetryable(t *testing.T) {
	f := newFixture(t)
	f.decrypter.fail["intent-1"] = fmt.Errorf("%w: 0 of 1 shares", seal.ErrDecryptionUnavailable)

	res := f.pipeline.Process(context.Background(), f.intent(1, f.details(f.user, nullifier(1), "5")))
	if res.Kind != DecryptionUnavailable || res.Kind.Terminal() {
		t.Fatalf("result = %+v", res)
	}
}

// TestTamperedDetailsUnauthorized verifies a signature over other values has no authority.
func TestTamperedDetailsUnauthorized(t *testing.T) {
	f := newFixture(t)

	d := f.details(f.user, nullifier(1), "5")
	d.InputAmount = "5000"

	res := f.pipeline.Process(context.Background(), f.intent(1, d))
	if res.Kind != Unauthorized || len(f.settler.swaps) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

// TestUnsupportedSchemeMalformed verifies unknown signature flags are parse failures.
func TestUnsupportedSchemeMalformed(t *testing.T) {
	f := newFixture(t)

	d := f.details(f.user, nullifier(1), "5")
	raw, _ := base64.StdEncoding.DecodeString(d.Signature)
	raw[0] = 0x05
	d.Signature = base64.StdEncoding.EncodeToString(raw)

	res := f.pipeline.Process(context.Background(), f.intent(1, d))
	if res.Kind != Malformed || !errors.Is(res.Err, wallet.ErrUnsupportedScheme) {
		t.Fatalf("result = %+v", res)
	}
}

// TestUnsupportedDirectionBeforeDecryption verifies routed swaps from a foreign asset fail fast.
func TestUnsupportedDirectionBeforeDecryption(t *testing.T) {
	f := newFixture(t)

	intent := f.intent(1, f.details(f.user, nullifier(1), "5"))
	intent.TokenIn = "0xdba3::usdc::USDC"

	res := f.pipeline.Process(context.Background(), intent)
	if res.Kind != Rejected || !errors.Is(res.Err, route.ErrUnsupportedDirection) {
		t.Fatalf("result = %+v", res)
	}

	if f.decrypter.calls != 0 {
		t.Fatalf("decrypt calls = %d", f.decrypter.calls)
	}
}

// TestRoutedPlan verifies native-to-other swaps produce a routed plan.
func TestRoutedPlan(t *testing.T) {
	f := newFixture(t)

	intent := f.intent(1, f.details(f.user, nullifier(1), "250"))
	intent.TokenOut = "0xdba3::usdc::USDC"

	res := f.pipeline.Process(context.Background(), intent)
	if res.Kind != Settled {
		t.Fatalf("result = %+v", res)
	}

	p, ok := res.Plan.(route.Routed)
	if !ok || p.Amount != 250 || !strings.HasSuffix(p.OutputType, "::usdc::USDC") {
		t.Fatalf("plan = %#v", res.Plan)
	}
}

// TestUndecodableIntentMalformed verifies intents whose fields could not be decoded are reported.
func TestUndecodableIntentMalformed(t *testing.T) {
	f := newFixture(t)

	intent := &ledger.Intent{ID: ledger.ObjectID{31: 1}, DecodeErr: fmt.Errorf("%w: deadline", ledger.ErrUnexpectedShape)}

	if res := f.pipeline.Process(context.Background(), intent); res.Kind != Malformed {
		t.Fatalf("result = %+v", res)
	}
}

// =============================================================================
// Owner binding
// =============================================================================

type fakeDeposits struct {
	deposits []*ledger.Deposit
	err      error
}

func (s *fakeDeposits) Deposits(context.Context, ledger.ObjectID) ([]*ledger.Deposit, error) {
	return s.deposits, s.err
}

func (f *fixture) deposit(b byte, n [NullifierSize]byte, owner ledger.Address) *ledger.Deposit {
	data := DepositData{Amount: "1000", Nullifier: "0x" + hex.EncodeToString(n[:]), OwnerAddress: owner.String()}

	return &ledger.Deposit{
		ID:            ledger.ObjectID{0: 0xde, 31: b},
		EncryptedData: f.encrypt(fmt.Sprintf("deposit-%d", b), data),
	}
}

// TestOwnerBinding verifies the signer must own the deposit being spent.
func TestOwnerBinding(t *testing.T) {
	f := newFixture(t)
	other, _ := wallet.KeypairFromSeed(bytes.Repeat([]byte{2}, 32))

	source := &fakeDeposits{deposits: []*ledger.Deposit{
		f.deposit(1, nullifier(1), f.user.Address()),
		f.deposit(2, nullifier(2), other.Address()),
		{ID: ledger.ObjectID{31: 3}, EncryptedData: []byte("garbage")},
	}}

	owners := NewOwnerResolver(source, ledger.ObjectID{31: 0x7a}, f.decrypter)
	f.pipeline.owners = owners

	if res := f.pipeline.Process(context.Background(), f.intent(1, f.details(f.user, nullifier(1), "5"))); res.Kind != Settled {
		t.Fatalf("own deposit: %+v", res)
	}

	// Spending someone else's deposit with a valid signature.
	res := f.pipeline.Process(context.Background(), f.intent(2, f.details(f.user, nullifier(2), "5")))
	if res.Kind != Unauthorized || !errors.Is(res.Err, ErrOwnerMismatch) {
		t.Fatalf("foreign deposit: %+v", res)
	}

	calls := f.decrypter.calls

	res = f.pipeline.Process(context.Background(), f.intent(3, f.details(f.user, nullifier(3), "5")))
	if res.Kind != Rejected || !errors.Is(res.Err, ErrUnknownNullifier) {
		t.Fatalf("unknown nullifier: %+v", res)
	}

	// Every deposit is cached by now; only the intent itself is decrypted.
	if f.decrypter.calls != calls+1 {
		t.Fatalf("decrypt calls = %d, want %d", f.decrypter.calls, calls+1)
	}
}

// TestOwnerBindingRetriesUnreadableDeposits verifies a key-server outage
// while reading deposits is retried instead of rejecting the intent.
func TestOwnerBindingRetriesUnreadableDeposits(t *testing.T) {
	f := newFixture(t)
	other, _ := wallet.KeypairFromSeed(bytes.Repeat([]byte{2}, 32))

	source := &fakeDeposits{deposits: []*ledger.Deposit{f.deposit(5, nullifier(9), other.Address())}}
	f.pipeline.owners = NewOwnerResolver(source, ledger.ObjectID{31: 0x7a}, f.decrypter)
	f.decrypter.fail["deposit-5"] = seal.ErrDecryptionUnavailable

	intent := f.intent(9, f.details(f.user, nullifier(9), "5"))

	res := f.pipeline.Process(context.Background(), intent)
	if res.Kind != DecryptionUnavailable || errors.Is(res.Err, ErrUnknownNullifier) {
		t.Fatalf("outage: %+v", res)
	}

	delete(f.decrypter.fail, "deposit-5")

	res = f.pipeline.Process(context.Background(), intent)
	if res.Kind != Unauthorized || !errors.Is(res.Err, ErrOwnerMismatch) {
		t.Fatalf("after recovery: %+v", res)
	}

	if len(f.settler.swaps) != 0 {
		t.Fatalf("settled %d swaps", len(f.settler.swaps))
	}
}

// depositLedger serves a deposit table over JSON-RPC. Entries listed with a
// nil deposit report the object as deleted when fetched.
func depositLedger(t *testing.T, entries map[ledger.ObjectID]*ledger.Deposit, order []ledger.ObjectID) *ledger.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any

		switch req.Method {
		case "suix_getDynamicFields":
			data := make([]any, 0, len(order))
			for _, id := range order {
				data = append(data, map[string]any{"objectId": id.String()})
			}

			result = map[string]any{"data": data, "hasNextPage": false}

		case "sui_getObject":
			var raw string
			_ = json.Unmarshal(req.Params[0], &raw)

			id, err := ledger.ParseObjectID(raw)
			if err != nil {
				t.Errorf("object id %q: %v", raw, err)
			}

			d := entries[id]
			if d == nil {
				result = map[string]any{"error": map[string]any{"code": "deleted", "object_id": raw}}
				break
			}

			data := make([]int, len(d.EncryptedData))
			for i, b := range d.EncryptedData {
				data[i] = int(b)
			}

			result = map[string]any{
				"data": map[string]any{
					"objectId": raw,
					"version":  "1",
					"content": map[string]any{
						"dataType": "moveObject",
						"fields": map[string]any{
							"name": id.String(),
							"value": map[string]any{
								"type": "0xaa::mist_protocol::Deposit",
								"fields": map[string]any{
									"encrypted_data": data,
									"token_type":     []int{},
									"amount":         "0",
								},
							},
						},
					},
				},
			}

		default:
			t.Errorf("unexpected method %s", req.Method)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)

	return ledger.NewClient(srv.URL, srv.Client())
}

// TestOwnerBindingDepositRemovedDuringListing verifies a deposit deleted
// between listing and fetching does not cost another intent its settlement.
func TestOwnerBindingDepositRemovedDuringListing(t *testing.T) {
	f := newFixture(t)

	own := f.deposit(1, nullifier(1), f.user.Address())
	removed := ledger.ObjectID{0: 0xdd, 31: 1}

	client := depositLedger(t, map[ledger.ObjectID]*ledger.Deposit{own.ID: own}, []ledger.ObjectID{removed, own.ID})
	f.pipeline.owners = NewOwnerResolver(client, ledger.ObjectID{31: 0x7a}, f.decrypter)

	res := f.pipeline.Process(context.Background(), f.intent(1, f.details(f.user, nullifier(1), "5")))
	if res.Kind != Settled || len(f.settler.swaps) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

// TestOwnerBindingMissingObjectRetried verifies a missing non-intent object
// while resolving the owner leaves the intent pending.
func TestOwnerBindingMissingObjectRetried(t *testing.T) {
	f := newFixture(t)

	source := &fakeDeposits{err: fmt.Errorf("fetch deposit 0xdd:\n%w: 0xdd (deleted)", ledger.ErrObjectNotFound)}
	f.pipeline.owners = NewOwnerResolver(source, ledger.ObjectID{31: 0x7a}, f.decrypter)

	res := f.pipeline.Process(context.Background(), f.intent(1, f.details(f.user, nullifier(1), "5")))
	if res.Kind != Transient || res.Kind.Terminal() {
		t.Fatalf("result = %+v", res)
	}
}

// =============================================================================
// Loop
// =============================================================================

type fakeSource struct {
	ids      []ledger.ObjectID
	intents  map[ledger.ObjectID]*ledger.Intent
	eventErr error
	queries  int
}

func (s *fakeSource) IntentEvents(_ context.Context, _ string, cursor ledger.EventCursor) ([]ledger.ObjectID, ledger.EventCursor, error) {
	s.queries++

	if s.eventErr != nil {
		return nil, cursor, s.eventErr
	}

	if !cursor.IsZero() {
		return nil, cursor, nil
	}

	return s.ids, ledger.EventCursor{TxDigest: "EvTx", EventSeq: "2"}, nil
}

func (s *fakeSource) GetIntent(_ context.Context, id ledger.ObjectID) (*ledger.Intent, error) {
	intent, ok := s.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s:\n%w", ledger.ErrIntentGone, id, ledger.ErrObjectNotFound)
	}

	return intent, nil
}

func counterValue(t *testing.T, m *Metrics, name, label, value string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

		for _, metric := range mf.GetMetric() {
			if label == "" {
				return metric.GetCounter().GetValue()
			}

			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}

	return 0
}

// TestLoopCycles verifies terminal intents leave the queue, retryable ones
// are processed again, and consumed intents are recorded.
func TestLoopCycles(t *testing.T) {
	f := newFixture(t)

	good := f.intent(1, f.details(f.user, nullifier(1), "5"))
	expired := f.intent(2, f.details(f.user, nullifier(2), "5"))
	expired.DeadlineMs = uint64(testNow.UnixMilli() - 1)
	outage := f.intent(3, f.details(f.user, nullifier(3), "5"))
	gone := ledger.ObjectID{0: 0x1e, 31: 4}

	f.decrypter.fail["intent-3"] = seal.ErrDecryptionUnavailable

	source := &fakeSource{
		ids: []ledger.ObjectID{good.ID, expired.ID, outage.ID, gone},
		intents: map[ledger.ObjectID]*ledger.Intent{
			good.ID: good, expired.ID: expired, outage.ID: outage,
		},
	}

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	defer j.Close()

	metrics := NewMetrics()
	loop := NewLoop(LoopConfig{
		Source:    source,
		Journal:   j,
		Pipeline:  f.pipeline,
		Metrics:   metrics,
		EventType: "0xaa::mist_protocol::SwapIntentCreated",
		Interval:  time.Second,
	})

	report := loop.PollOnce(context.Background())
	if report.Err != nil || report.Discovered != 4 || report.Processed != 4 {
		t.Fatalf("cycle 1 = %+v", report)
	}

	want := map[Kind]int{Settled: 1, Expired: 1, DecryptionUnavailable: 1, Consumed: 1}
	for k, n := range want {
		if report.Outcomes[k] != n {
			t.Errorf("cycle 1 %s = %d, want %d", k, report.Outcomes[k], n)
		}
	}

	if c, _ := j.Cursor(); c.TxDigest != "EvTx" {
		t.Fatalf("cursor = %+v", c)
	}

	report = loop.PollOnce(context.Background())
	if report.Processed != 1 || report.Outcomes[DecryptionUnavailable] != 1 {
		t.Fatalf("cycle 2 = %+v", report)
	}

	delete(f.decrypter.fail, "intent-3")

	report = loop.PollOnce(context.Background())
	if report.Processed != 1 || report.Outcomes[Settled] != 1 {
		t.Fatalf("cycle 3 = %+v", report)
	}

	if len(f.settler.swaps) != 2 {
		t.Fatalf("settlements = %d", len(f.settler.swaps))
	}

	e, _ := j.Lookup(good.ID)
	if e == nil || !e.Terminal || e.TxDigest != "Digest1" || e.Kind != uint8(Settled) {
		t.Fatalf("journal entry = %+v", e)
	}

	e, _ = j.Lookup(outage.ID)
	if e.Attempts != 3 || e.TxDigest != "Digest2" {
		t.Fatalf("outage entry = %+v", e)
	}

	status := loop.Status()
	if status.Cycles != 3 || status.Pending != 0 || status.Outcomes["settled"] != 2 || status.Outcomes["decryption_unavailable"] != 2 {
		t.Fatalf("status = %+v", status)
	}

	if v := counterValue(t, metrics, "mist_intents_total", "kind", "settled"); v != 2 {
		t.Errorf("settled counter = %v", v)
	}

	if v := counterValue(t, metrics, "mist_poll_cycles_total", "", ""); v != 3 {
		t.Errorf("cycle counter = %v", v)
	}
}

// TestLoopDiscoveryFailure verifies queued intents are processed when the event query fails.
func TestLoopDiscoveryFailure(t *testing.T) {
	f := newFixture(t)
	good := f.intent(1, f.details(f.user, nullifier(1), "5"))

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	defer j.Close()

	j.Enqueue([]ledger.ObjectID{good.ID})

	source := &fakeSource{
		intents:  map[ledger.ObjectID]*ledger.Intent{good.ID: good},
		eventErr: fmt.Errorf("%w: timeout", ledger.ErrTransport),
	}

	loop := NewLoop(LoopConfig{Source: source, Journal: j, Pipeline: f.pipeline, Interval: time.Second})

	report := loop.PollOnce(context.Background())
	if !errors.Is(report.Err, ledger.ErrTransport) || report.Processed != 1 || report.Outcomes[Settled] != 1 {
		t.Fatalf("report = %+v", report)
	}

	if status := loop.Status(); status.LastError == "" {
		t.Fatal("last error not recorded")
	}
}

// TestLoopRunStops verifies Run returns once the context is cancelled.
func TestLoopRunStops(t *testing.T) {
	f := newFixture(t)

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	defer j.Close()

	source := &fakeSource{}
	loop := NewLoop(LoopConfig{Source: source, Journal: j, Pipeline: f.pipeline, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	if loop.Status().Cycles < 2 {
		t.Fatalf("cycles = %d", loop.Status().Cycles)
	}
}
