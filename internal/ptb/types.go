// Package ptb models programmable transactions and their BCS encoding.
package ptb

import (
	"Mist/internal/bcs"
	"Mist/internal/ledger"
)

// ArgumentKind tags Argument variants.
type ArgumentKind uint8

const (
	ArgGasCoin ArgumentKind = iota
	ArgInput
	ArgResult
	ArgNestedResult
)

// Argument refers to an input or to the output of an earlier command.
type Argument struct {
	Kind   ArgumentKind // Kind selects the variant
	Index  uint16       // Index is the input or command index
	Nested uint16       // Nested is the result index for NestedResult
}

// GasCoin refers to the transaction's gas coin.
var GasCoin = Argument{Kind: ArgGasCoin}

// Input refers to input i.
func Input(i uint16) Argument { return Argument{Kind: ArgInput, Index: i} }

// Result refers to the single result of command i.
func Result(i uint16) Argument { return Argument{Kind: ArgResult, Index: i} }

// NestedResult refers to result j of command i.
func NestedResult(i, j uint16) Argument {
	return Argument{Kind: ArgNestedResult, Index: i, Nested: j}
}

func (a Argument) encode(e *bcs.Encoder) {
	e.U8(uint8(a.Kind))

	switch a.Kind {
	case ArgInput, ArgResult:
		e.U16(a.Index)
	case ArgNestedResult:
		e.U16(a.Index).U16(a.Nested)
	}
}

// CallArgKind tags CallArg variants.
type CallArgKind uint8

const (
	CallArgPure CallArgKind = iota
	CallArgObject
)

// ObjectArgKind tags object inputs.
type ObjectArgKind uint8

const (
	ObjectOwned ObjectArgKind = iota
	ObjectShared
)

// CallArg is one transaction input: pure BCS bytes or an object.
type CallArg struct {
	Kind       CallArgKind      // Kind selects pure or object
	Pure       []byte           // Pure is the BCS value for pure inputs
	ObjectKind ObjectArgKind    // ObjectKind selects owned or shared for object inputs
	Owned      ledger.ObjectRef // Owned is set for owned object inputs
	SharedID   ledger.ObjectID  // SharedID is set for shared object inputs
	Initial    uint64           // Initial is the shared object's initial shared version
	Mutable    bool             // Mutable marks the shared object as written by the transaction
}

func (c CallArg) encode(e *bcs.Encoder) {
	e.U8(uint8(c.Kind))

	if c.Kind == CallArgPure {
		e.Vec(c.Pure)
		return
	}

	e.U8(uint8(c.ObjectKind))

	if c.ObjectKind == ObjectOwned {
		encodeObjectRef(e, c.Owned)
		return
	}

	e.Fixed(c.SharedID[:]).U64(c.Initial).Bool(c.Mutable)
}

func encodeObjectRef(e *bcs.Encoder, r ledger.ObjectRef) {
	e.Fixed(r.ID[:]).U64(r.Version).Vec(r.Digest[:])
}

// CommandKind tags Command variants.
type CommandKind uint8

const (
	CmdMoveCall CommandKind = iota
	CmdTransferObjects
	CmdSplitCoins
	CmdMergeCoins
)

// MoveCall invokes a Move function.
type MoveCall struct {
	Package       ledger.ObjectID // Package is the published package
	Module        string          // Module is the module name
	Function      string          // Function is the entry function name
	TypeArguments []TypeTag       // TypeArguments instantiate generic parameters
	Arguments     []Argument      // Arguments are passed positionally
}

// Command is one step of a programmable transaction.
type Command struct {
	Kind    CommandKind // Kind selects the variant
	Call    *MoveCall   // Call is set for MoveCall
	Objects []Argument  // Objects are transferred, split amounts, or merged sources
	Target  Argument    // Target is the recipient, split coin, or merge destination
}

func (c Command) encode(e *bcs.Encoder) {
	e.U8(uint8(c.Kind))

	switch c.Kind {
	case CmdMoveCall:
		e.Fixed(c.Call.Package[:]).String(c.Call.Module).String(c.Call.Function)

		e.Len(len(c.Call.TypeArguments))
		for _, t := range c.Call.TypeArguments {
			t.encode(e)
		}

		encodeArgs(e, c.Call.Arguments)
	case CmdTransferObjects:
		encodeArgs(e, c.Objects)
		c.Target.encode(e)
	case CmdSplitCoins, CmdMergeCoins:
		c.Target.encode(e)
		encodeArgs(e, c.Objects)
	}
}

func encodeArgs(e *bcs.Encoder, args []Argument) {
	e.Len(len(args))

	for _, a := range args {
		a.encode(e)
	}
}

// ProgrammableTransaction is an ordered list of inputs and commands.
type ProgrammableTransaction struct {
	Inputs   []CallArg // Inputs are referenced by Input(i)
	Commands []Command // Commands run in order
}

// Encode returns the BCS encoding of the programmable transaction.
func (p *ProgrammableTransaction) Encode() []byte {
	e := bcs.NewEncoder(256)
	p.encode(e)

	return e.Bytes()
}

func (p *ProgrammableTransaction) encode(e *bcs.Encoder) {
	e.Len(len(p.Inputs))
	for _, in := range p.Inputs {
		in.encode(e)
	}

	e.Len(len(p.Commands))
	for _, c := range p.Commands {
		c.encode(e)
	}
}

// kindProgrammable is the TransactionKind tag of a programmable transaction.
const kindProgrammable = 0

// EncodeKind returns the BCS encoding of the transaction as a TransactionKind.
func (p *ProgrammableTransaction) EncodeKind() []byte {
	e := bcs.NewEncoder(256)
	e.U8(kindProgrammable)
	p.encode(e)

	return e.Bytes()
}

// GasData pays for a transaction.
type GasData struct {
	Payment []ledger.ObjectRef // Payment are the gas coins
	Owner   ledger.Address     // Owner owns the gas coins
	Price   uint64             // Price is the gas price per unit
	Budget  uint64             // Budget caps the total gas spent
}

// TransactionData is a complete unsigned transaction.
type TransactionData struct {
	Sender ledger.Address          // Sender signs the transaction
	Gas    GasData                 // Gas pays for execution
	Kind   ProgrammableTransaction // Kind is the programmable body
}

// Encode returns the BCS encoding of TransactionData::V1 with no expiration.
func (t *TransactionData) Encode() []byte {
	e := bcs.NewEncoder(512)

	e.U8(0) // V1
	e.U8(kindProgrammable)
	t.Kind.encode(e)
	e.Fixed(t.Sender[:])

	e.Len(len(t.Gas.Payment))
	for _, r := range t.Gas.Payment {
		encodeObjectRef(e, r)
	}

	e.Fixed(t.Gas.Owner[:]).U64(t.Gas.Price).U64(t.Gas.Budget)
	e.None() // expiration

	return e.Bytes()
}
