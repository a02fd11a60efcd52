package ptb

import (
	"errors"
	"fmt"
	"strings"

	"Mist/internal/bcs"
	"Mist/internal/ledger"
)

// ErrInvalidTypeTag is returned for unparseable Move type strings.
var ErrInvalidTypeTag = errors.New("invalid type tag")

// TypeTagKind tags TypeTag variants in wire order.
type TypeTagKind uint8

const (
	TagBool TypeTagKind = iota
	TagU8
	TagU64
	TagU128
	TagAddress
	TagSigner
	TagVector
	TagStruct
	TagU16
	TagU32
	TagU256
)

var primitiveTags = map[string]TypeTagKind{
	"bool":    TagBool,
	"u8":      TagU8,
	"u16":     TagU16,
	"u32":     TagU32,
	"u64":     TagU64,
	"u128":    TagU128,
	"u256":    TagU256,
	"address": TagAddress,
	"signer":  TagSigner,
}

// StructTag names a Move struct type.
type StructTag struct {
	Address ledger.ObjectID // Address is the defining package
	Module  string          // Module is the module name
	Name    string          // Name is the struct name
	Params  []TypeTag       // Params are the type arguments
}

// TypeTag is a Move type.
type TypeTag struct {
	Kind   TypeTagKind // Kind selects the variant
	Struct *StructTag  // Struct is set for TagStruct
	Elem   *TypeTag    // Elem is set for TagVector
}

// ParseTypeTag parses types like "0x2::sui::SUI", "vector<u8>" or
// "0x2::coin::Coin<0x2::sui::SUI>".
func ParseTypeTag(s string) (TypeTag, error) {
	p := &typeParser{src: strings.ReplaceAll(s, " ", "")}

	t, err := p.parse()
	if err != nil {
		return TypeTag{}, fmt.Errorf("%w: %q:\n%w", ErrInvalidTypeTag, s, err)
	}

	if p.pos != len(p.src) {
		return TypeTag{}, fmt.Errorf("%w: %q: trailing input", ErrInvalidTypeTag, s)
	}

	return t, nil
}

// MustTypeTag parses s and panics on failure. Only for constants.
func MustTypeTag(s string) TypeTag {
	t, err := ParseTypeTag(s)
	if err != nil {
		panic(err)
	}

	return t
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) parse() (TypeTag, error) {
	word := p.word()

	if kind, ok := primitiveTags[word]; ok {
		return TypeTag{Kind: kind}, nil
	}

	if word == "vector" {
		if !p.consume("<") {
			return TypeTag{}, errors.New("expected < after vector")
		}

		elem, err := p.parse()
		if err != nil {
			return TypeTag{}, err
		}

		if !p.consume(">") {
			return TypeTag{}, errors.New("expected > closing vector")
		}

		return TypeTag{Kind: TagVector, Elem: &elem}, nil
	}

	parts := strings.Split(word, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return TypeTag{}, fmt.Errorf("expected address::module::name, got %q", word)
	}

	addr, err := ledger.ParseObjectID(parts[0])
	if err != nil {
		return TypeTag{}, err
	}

	st := &StructTag{Address: addr, Module: parts[1], Name: parts[2]}

	if p.consume("<") {
		for {
			param, err := p.parse()
			if err != nil {
				return TypeTag{}, err
			}

			st.Params = append(st.Params, param)

			if p.consume(">") {
				break
			}

			if !p.consume(",") {
				return TypeTag{}, errors.New("expected , or > in type arguments")
			}
		}
	}

	return TypeTag{Kind: TagStruct, Struct: st}, nil
}

// word reads up to the next '<', '>' or ','.
func (p *typeParser) word() string {
	start := p.pos

	for p.pos < len(p.src) && !strings.ContainsRune("<>,", rune(p.src[p.pos])) {
		p.pos++
	}

	return p.src[start:p.pos]
}

func (p *typeParser) consume(tok string) bool {
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}

	return false
}

// String returns the canonical form with full-length addresses.
func (t TypeTag) String() string {
	switch t.Kind {
	case TagVector:
		return "vector<" + t.Elem.String() + ">"
	case TagStruct:
		var b strings.Builder

		b.WriteString(t.Struct.Address.String() + "::" + t.Struct.Module + "::" + t.Struct.Name)

		if len(t.Struct.Params) > 0 {
			b.WriteByte('<')

			for i, p := range t.Struct.Params {
				if i > 0 {
					b.WriteString(", ")
				}

				b.WriteString(p.String())
			}

			b.WriteByte('>')
		}

		return b.String()
	default:
		for name, kind := range primitiveTags {
			if kind == t.Kind {
				return name
			}
		}

		return "?"
	}
}

func (t TypeTag) encode(e *bcs.Encoder) {
	e.U8(uint8(t.Kind))

	switch t.Kind {
	case TagVector:
		t.Elem.encode(e)
	case TagStruct:
		e.Fixed(t.Struct.Address[:]).String(t.Struct.Module).String(t.Struct.Name)
		e.Len(len(t.Struct.Params))

		for _, p := range t.Struct.Params {
			p.encode(e)
		}
	}
}
