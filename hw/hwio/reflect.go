package hwio

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type bankReg struct {
	offset uint32
	regPtr *Reg32
}

type regTag struct {
	offset    uint32
	hasOffset bool
	bank      int
	reset     uint32
	rwmask    uint32
	hasRWMask bool
	flags     RWFlags
	rcb       string
	wcb       string
}

func parseTag(name, tag string) (regTag, error) {
	rt := regTag{}
	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		key, val, hasVal := strings.Cut(opt, "=")

		num := func() (uint64, error) {
			if !hasVal {
				return 0, fmt.Errorf("%s: missing value for %q", name, key)
			}
			n, err := strconv.ParseUint(val, 0, 32)
			if err != nil {
				return 0, fmt.Errorf("%s: invalid %s: %v", name, key, err)
			}
			return n, nil
		}

		switch key {
		case "offset":
			n, err := num()
			if err != nil {
				return rt, err
			}
			rt.offset, rt.hasOffset = uint32(n), true
		case "bank":
			n, err := num()
			if err != nil {
				return rt, err
			}
			rt.bank = int(n)
		case "reset":
			n, err := num()
			if err != nil {
				return rt, err
			}
			rt.reset = uint32(n)
		case "rwmask":
			n, err := num()
			if err != nil {
				return rt, err
			}
			rt.rwmask, rt.hasRWMask = uint32(n), true
		case "readonly":
			rt.flags |= ReadOnlyFlag
		case "writeonly":
			rt.flags |= WriteOnlyFlag
		case "rcb":
			rt.rcb = "Read" + strings.ToUpper(name)
			if hasVal {
				rt.rcb = val
			}
		case "wcb":
			rt.wcb = "Write" + strings.ToUpper(name)
			if hasVal {
				rt.wcb = val
			}
		default:
			return rt, fmt.Errorf("%s: unknown hwio option %q", name, key)
		}
	}
	return rt, nil
}

func structValue(data any) (reflect.Value, error) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("hwio: expected pointer to struct, got %T", data)
	}
	return v, nil
}

var reg32Type = reflect.TypeOf(Reg32{})

// InitRegs initializes all the Reg32 fields of the structure pointed by data,
// following their "hwio" struct tags: name, reset value, writable bits mask,
// access flags and read/write callbacks.
//
// Callbacks are methods of data. By default, rcb binds ReadFOO(val uint32)
// uint32 and wcb binds WriteFOO(old, val uint32) for a register named Foo;
// rcb=Method and wcb=Method select another method.
func InitRegs(data any) error {
	v, err := structValue(data)
	if err != nil {
		return err
	}

	s := v.Elem()
	for i := range s.NumField() {
		field := s.Type().Field(i)
		tag, ok := field.Tag.Lookup("hwio")
		if !ok || field.Type != reg32Type {
			continue
		}

		rt, err := parseTag(field.Name, tag)
		if err != nil {
			return err
		}

		reg := s.Field(i).Addr().Interface().(*Reg32)
		reg.Name = field.Name
		reg.Value = rt.reset
		reg.Flags = rt.flags
		if rt.hasRWMask {
			reg.RoMask = ^rt.rwmask
		}

		if rt.rcb != "" {
			m := v.MethodByName(rt.rcb)
			if !m.IsValid() {
				return fmt.Errorf("%s: missing read callback %s", field.Name, rt.rcb)
			}
			cb, ok := m.Interface().(func(uint32) uint32)
			if !ok {
				return fmt.Errorf("%s: read callback %s has signature %s", field.Name, rt.rcb, m.Type())
			}
			reg.ReadCb = cb
		}
		if rt.wcb != "" {
			m := v.MethodByName(rt.wcb)
			if !m.IsValid() {
				return fmt.Errorf("%s: missing write callback %s", field.Name, rt.wcb)
			}
			cb, ok := m.Interface().(func(uint32, uint32))
			if !ok {
				return fmt.Errorf("%s: write callback %s has signature %s", field.Name, rt.wcb, m.Type())
			}
			reg.WriteCb = cb
		}
	}
	return nil
}

// MustInitRegs is like InitRegs but panics on error.
func MustInitRegs(data any) {
	if err := InitRegs(data); err != nil {
		panic(err)
	}
}

func bankGetRegs(bank any, bankNum int) ([]bankReg, error) {
	v, err := structValue(bank)
	if err != nil {
		return nil, err
	}

	var regs []bankReg
	s := v.Elem()
	for i := range s.NumField() {
		field := s.Type().Field(i)
		tag, ok := field.Tag.Lookup("hwio")
		if !ok || field.Type != reg32Type {
			continue
		}
		rt, err := parseTag(field.Name, tag)
		if err != nil {
			return nil, err
		}
		if !rt.hasOffset || rt.bank != bankNum {
			continue
		}
		regs = append(regs, bankReg{
			offset: rt.offset,
			regPtr: s.Field(i).Addr().Interface().(*Reg32),
		})
	}
	return regs, nil
}
