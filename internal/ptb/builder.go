package ptb

import (
	"Mist/internal/bcs"
	"Mist/internal/ledger"
)

// Builder accumulates inputs and commands. Shared objects and pure values
// are deduplicated so each appears once in the input list.
type Builder struct {
	inputs   []CallArg
	commands []Command
	shared   map[ledger.ObjectID]uint16
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{shared: make(map[ledger.ObjectID]uint16)}
}

func (b *Builder) addInput(arg CallArg) Argument {
	b.inputs = append(b.inputs, arg)
	return Input(uint16(len(b.inputs) - 1))
}

// Pure adds a pure input holding already BCS-encoded bytes.
func (b *Builder) Pure(encoded []byte) Argument {
	return b.addInput(CallArg{Kind: CallArgPure, Pure: encoded})
}

// PureU64 adds a u64 input.
func (b *Builder) PureU64(v uint64) Argument {
	return b.Pure(bcs.U64Bytes(v))
}

// PureU128 adds a u128 input given as high and low words.
func (b *Builder) PureU128(hi, lo uint64) Argument {
	return b.Pure(bcs.NewEncoder(16).U128(hi, lo).Bytes())
}

// PureAddress adds an address input.
func (b *Builder) PureAddress(a ledger.Address) Argument {
	return b.Pure(append([]byte(nil), a[:]...))
}

// PureBytes adds a vector<u8> input.
func (b *Builder) PureBytes(v []byte) Argument {
	return b.Pure(bcs.VecBytes(v))
}

// SharedObject adds a shared object input. Adding the same object twice
// returns the first input, upgraded to mutable if either use is mutable.
func (b *Builder) SharedObject(id ledger.ObjectID, initialVersion uint64, mutable bool) Argument {
	if idx, ok := b.shared[id]; ok {
		if mutable {
			b.inputs[idx].Mutable = true
		}

		return Input(idx)
	}

	arg := b.addInput(CallArg{
		Kind:       CallArgObject,
		ObjectKind: ObjectShared,
		SharedID:   id,
		Initial:    initialVersion,
		Mutable:    mutable,
	})
	b.shared[id] = arg.Index

	return arg
}

func (b *Builder) addCommand(c Command) Argument {
	b.commands = append(b.commands, c)
	return Result(uint16(len(b.commands) - 1))
}

// MoveCall appends a Move call and returns its result.
func (b *Builder) MoveCall(pkg ledger.ObjectID, module, function string, typeArgs []TypeTag, args ...Argument) Argument {
	return b.addCommand(Command{
		Kind: CmdMoveCall,
		Call: &MoveCall{Package: pkg, Module: module, Function: function, TypeArguments: typeArgs, Arguments: args},
	})
}

// TransferObjects sends objects to recipient.
func (b *Builder) TransferObjects(objects []Argument, recipient Argument) {
	b.addCommand(Command{Kind: CmdTransferObjects, Objects: objects, Target: recipient})
}

// Finish returns the built transaction. The builder must not be reused.
func (b *Builder) Finish() ProgrammableTransaction {
	return ProgrammableTransaction{Inputs: b.inputs, Commands: b.commands}
}
