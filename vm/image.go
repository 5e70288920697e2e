package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the current .ksc image format version.
// Increment when making incompatible changes to the format.
const ImageVersion uint16 = 1

// ImageMagic identifies a Kestrel compiled image.
const ImageMagic = "KSC"

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type imageFile struct {
	Magic   string        `cbor:"magic"`
	Version uint16        `cbor:"version"`
	Main    imageFunction `cbor:"main"`
}

type imageFunction struct {
	Name         string          `cbor:"name"`
	Params       []imageParam    `cbor:"params,omitempty"`
	UpvalueCount int             `cbor:"upvalues,omitempty"`
	Code         []byte          `cbor:"code"`
	Constants    []imageConstant `cbor:"constants,omitempty"`
	Symbols      []imageSymbol   `cbor:"symbols,omitempty"`
}

type imageParam struct {
	Name string `cbor:"name"`
	Type string `cbor:"type,omitempty"`
}

type imageSymbol struct {
	From   int    `cbor:"from"`
	To     int    `cbor:"to"`
	Line   int    `cbor:"line"`
	Column int    `cbor:"col"`
	Token  string `cbor:"tok,omitempty"`
}

// Constant kinds on the wire.
const (
	constNull uint8 = iota
	constBool
	constNumber
	constString
	constFunction
)

type imageConstant struct {
	Kind     uint8          `cbor:"k"`
	Number   float64        `cbor:"n,omitempty"`
	Bool     bool           `cbor:"b,omitempty"`
	String   string         `cbor:"s,omitempty"`
	Function *imageFunction `cbor:"f,omitempty"`
}

// ---------------------------------------------------------------------------
// Marshal / Unmarshal
// ---------------------------------------------------------------------------

// MarshalImage serializes a compiled program to canonical CBOR.
func MarshalImage(fn *Function) ([]byte, error) {
	main, err := toImageFunction(fn)
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(imageFile{Magic: ImageMagic, Version: ImageVersion, Main: main})
	if err != nil {
		return nil, fmt.Errorf("vm: marshal image: %w", err)
	}
	return data, nil
}

// UnmarshalImage deserializes a compiled program and verifies its code.
func UnmarshalImage(data []byte) (*Function, error) {
	var img imageFile
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("vm: unmarshal image: bad magic %q", img.Magic)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("vm: unmarshal image: unsupported version %d", img.Version)
	}
	fn, err := fromImageFunction(&img.Main)
	if err != nil {
		return nil, err
	}
	if err := Verify(fn); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	return fn, nil
}

func toImageFunction(fn *Function) (imageFunction, error) {
	out := imageFunction{
		Name:         fn.Name,
		UpvalueCount: fn.UpvalueCount,
		Code:         fn.Chunk.Code,
	}
	for _, p := range fn.Params {
		out.Params = append(out.Params, imageParam{Name: p.Name, Type: p.Type})
	}
	for _, s := range fn.Chunk.Symbols {
		out.Symbols = append(out.Symbols, imageSymbol(s))
	}
	for i, c := range fn.Chunk.Constants {
		ic := imageConstant{}
		switch c.Kind() {
		case KindNull:
			ic.Kind = constNull
		case KindBool:
			ic.Kind, ic.Bool = constBool, c.AsBool()
		case KindNumber:
			ic.Kind, ic.Number = constNumber, c.AsNumber()
		case KindObject:
			switch o := c.AsObject().(type) {
			case *String:
				ic.Kind, ic.String = constString, o.Value
			case *Function:
				nested, err := toImageFunction(o)
				if err != nil {
					return out, err
				}
				ic.Kind, ic.Function = constFunction, &nested
			default:
				return out, fmt.Errorf("vm: marshal image: %s constant %d of kind %s is not serializable",
					fn, i, o.Kind())
			}
		}
		out.Constants = append(out.Constants, ic)
	}
	return out, nil
}

func fromImageFunction(img *imageFunction) (*Function, error) {
	fn := NewFunction(img.Name)
	fn.UpvalueCount = img.UpvalueCount
	fn.Chunk.Code = append(fn.Chunk.Code, img.Code...)
	for _, p := range img.Params {
		fn.Params = append(fn.Params, Param{Name: p.Name, Type: p.Type})
	}
	for _, s := range img.Symbols {
		fn.Chunk.Symbols = append(fn.Chunk.Symbols, DebugSymbol(s))
	}
	for i, ic := range img.Constants {
		switch ic.Kind {
		case constNull:
			fn.Chunk.AddConstant(Null)
		case constBool:
			fn.Chunk.AddConstant(Bool(ic.Bool))
		case constNumber:
			fn.Chunk.AddConstant(Number(ic.Number))
		case constString:
			fn.Chunk.AddConstant(Str(ic.String))
		case constFunction:
			if ic.Function == nil {
				return nil, fmt.Errorf("vm: unmarshal image: %s constant %d missing function body", fn, i)
			}
			nested, err := fromImageFunction(ic.Function)
			if err != nil {
				return nil, err
			}
			fn.Chunk.AddConstant(FromObject(nested))
		default:
			return nil, fmt.Errorf("vm: unmarshal image: %s constant %d has unknown kind %d", fn, i, ic.Kind)
		}
	}
	return fn, nil
}
