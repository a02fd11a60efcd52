package ptb

import (
	"errors"
	"fmt"

	"Mist/internal/bcs"
	"Mist/internal/ledger"
)

// ErrMalformed is returned for programmable transaction bytes that cannot be decoded.
var ErrMalformed = errors.New("malformed programmable transaction")

// maxTypeDepth bounds nested type arguments while decoding.
const maxTypeDepth = 8

// DecodeProgrammable decodes BCS ProgrammableTransaction bytes.
func DecodeProgrammable(data []byte) (*ProgrammableTransaction, error) {
	d := bcs.NewDecoder(data)
	p := &ProgrammableTransaction{}

	n := d.Len()
	for i := 0; i < n && d.Err() == nil; i++ {
		arg, err := decodeCallArg(d)
		if err != nil {
			return nil, err
		}

		p.Inputs = append(p.Inputs, arg)
	}

	n = d.Len()
	for i := 0; i < n && d.Err() == nil; i++ {
		cmd, err := decodeCommand(d)
		if err != nil {
			return nil, err
		}

		p.Commands = append(p.Commands, cmd)
	}

	if d.Err() != nil {
		return nil, fmt.Errorf("%w:\n%w", ErrMalformed, d.Err())
	}

	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, d.Remaining())
	}

	return p, nil
}

func decodeCallArg(d *bcs.Decoder) (CallArg, error) {
	switch CallArgKind(d.U8()) {
	case CallArgPure:
		return CallArg{Kind: CallArgPure, Pure: d.Vec()}, nil
	case CallArgObject:
	default:
		return CallArg{}, fmt.Errorf("%w: call arg tag", ErrMalformed)
	}

	switch ObjectArgKind(d.U8()) {
	case ObjectOwned:
		ref := ledger.ObjectRef{}
		copy(ref.ID[:], d.Fixed(32))
		ref.Version = d.U64()
		copy(ref.Digest[:], d.Vec())

		return CallArg{Kind: CallArgObject, ObjectKind: ObjectOwned, Owned: ref}, nil
	case ObjectShared:
		arg := CallArg{Kind: CallArgObject, ObjectKind: ObjectShared}
		copy(arg.SharedID[:], d.Fixed(32))
		arg.Initial = d.U64()
		arg.Mutable = d.Bool()

		return arg, nil
	default:
		return CallArg{}, fmt.Errorf("%w: object arg tag", ErrMalformed)
	}
}

func decodeArgument(d *bcs.Decoder) (Argument, error) {
	a := Argument{Kind: ArgumentKind(d.U8())}

	switch a.Kind {
	case ArgGasCoin:
	case ArgInput, ArgResult:
		a.Index = d.U16()
	case ArgNestedResult:
		a.Index = d.U16()
		a.Nested = d.U16()
	default:
		return Argument{}, fmt.Errorf("%w: argument tag %d", ErrMalformed, a.Kind)
	}

	return a, nil
}

func decodeArguments(d *bcs.Decoder) ([]Argument, error) {
	n := d.Len()
	args := make([]Argument, 0, min(n, 64))

	for i := 0; i < n && d.Err() == nil; i++ {
		a, err := decodeArgument(d)
		if err != nil {
			return nil, err
		}

		args = append(args, a)
	}

	return args, nil
}

func decodeCommand(d *bcs.Decoder) (Command, error) {
	kind := CommandKind(d.U8())

	switch kind {
	case CmdMoveCall:
		call := &MoveCall{}
		copy(call.Package[:], d.Fixed(32))
		call.Module = d.Str()
		call.Function = d.Str()

		n := d.Len()
		for i := 0; i < n && d.Err() == nil; i++ {
			t, err := decodeTypeTag(d, 0)
			if err != nil {
				return Command{}, err
			}

			call.TypeArguments = append(call.TypeArguments, t)
		}

		args, err := decodeArguments(d)
		if err != nil {
			return Command{}, err
		}

		call.Arguments = args

		return Command{Kind: CmdMoveCall, Call: call}, nil
	case CmdTransferObjects:
		objs, err := decodeArguments(d)
		if err != nil {
			return Command{}, err
		}

		target, err := decodeArgument(d)

		return Command{Kind: kind, Objects: objs, Target: target}, err
	case CmdSplitCoins, CmdMergeCoins:
		target, err := decodeArgument(d)
		if err != nil {
			return Command{}, err
		}

		objs, err := decodeArguments(d)

		return Command{Kind: kind, Objects: objs, Target: target}, err
	default:
		return Command{}, fmt.Errorf("%w: command tag %d", ErrMalformed, kind)
	}
}

func decodeTypeTag(d *bcs.Decoder, depth int) (TypeTag, error) {
	if depth > maxTypeDepth {
		return TypeTag{}, fmt.Errorf("%w: type nesting too deep", ErrMalformed)
	}

	t := TypeTag{Kind: TypeTagKind(d.U8())}

	switch t.Kind {
	case TagVector:
		elem, err := decodeTypeTag(d, depth+1)
		if err != nil {
			return TypeTag{}, err
		}

		t.Elem = &elem
	case TagStruct:
		st := &StructTag{}
		copy(st.Address[:], d.Fixed(32))
		st.Module = d.Str()
		st.Name = d.Str()

		n := d.Len()
		for i := 0; i < n && d.Err() == nil; i++ {
			p, err := decodeTypeTag(d, depth+1)
			if err != nil {
				return TypeTag{}, err
			}

			st.Params = append(st.Params, p)
		}

		t.Struct = st
	default:
		if t.Kind > TagU256 {
			return TypeTag{}, fmt.Errorf("%w: type tag %d", ErrMalformed, t.Kind)
		}
	}

	return t, nil
}
