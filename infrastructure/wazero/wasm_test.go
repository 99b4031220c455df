package wazero

// A minimal WebAssembly binary encoder for test programs.

const (
	valI32 byte = 0x7f
	valI64 byte = 0x7e

	opUnreachable byte = 0x00
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opI32Load     byte = 0x28
	opI32Store    byte = 0x36
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42
	opI32Add      byte = 0x6a
	opEnd         byte = 0x0b
)

type funcType struct {
	params  []byte
	results []byte
}

type hostImport struct {
	name string
	typ  funcType
}

type dataSegment struct {
	offset int32
	bytes  []byte
}

type program struct {
	data        []dataSegment
	module      string
	imports     []hostImport
	body        []byte
	memoryPages int // 0 means no memory
	entry       string
	entryType   *funcType
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func wasmName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

func (t funcType) encode() []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint64(len(t.params)))...)
	out = append(out, t.params...)
	out = append(out, uleb(uint64(len(t.results)))...)
	return append(out, t.results...)
}

// i32 pushes a constant.
func i32(v int32) []byte {
	return append([]byte{opI32Const}, sleb(int64(v))...)
}

// i64 pushes a constant.
func i64(v int64) []byte {
	return append([]byte{opI64Const}, sleb(v)...)
}

// store writes the i32 on top of the stack to the address below it.
func store() []byte {
	return []byte{opI32Store, 0x02, 0x00}
}

// load reads the i32 at the address on top of the stack.
func load() []byte {
	return []byte{opI32Load, 0x02, 0x00}
}

// call calls function index idx. Imports come first in the index space.
func call(idx int) []byte {
	return append([]byte{opCall}, uleb(uint64(idx))...)
}

func code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func (p program) encode() []byte {
	module := p.module
	if module == "" {
		module = DefaultModuleName
	}
	entry := p.entry
	if entry == "" {
		entry = DefaultEntryPoint
	}
	mainType := funcType{results: []byte{valI32}}
	if p.entryType != nil {
		mainType = *p.entryType
	}

	types := make([][]byte, 0, len(p.imports)+1)
	imports := make([][]byte, 0, len(p.imports))
	for i, imp := range p.imports {
		types = append(types, imp.typ.encode())
		entryBytes := code(wasmName(module), wasmName(imp.name), []byte{0x00}, uleb(uint64(i)))
		imports = append(imports, entryBytes)
	}
	mainIdx := len(p.imports)
	types = append(types, mainType.encode())

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, vec(types...))...)
	if len(imports) > 0 {
		out = append(out, section(2, vec(imports...))...)
	}
	out = append(out, section(3, vec(uleb(uint64(mainIdx))))...)
	if p.memoryPages > 0 {
		out = append(out, section(5, vec(code([]byte{0x00}, uleb(uint64(p.memoryPages)))))...)
	}
	out = append(out, section(7, vec(code(wasmName(entry), []byte{0x00}, uleb(uint64(mainIdx)))))...)

	body := code([]byte{0x00}, p.body, []byte{opEnd}) // no locals
	out = append(out, section(10, vec(code(uleb(uint64(len(body))), body)))...)

	if len(p.data) > 0 {
		segs := make([][]byte, 0, len(p.data))
		for _, d := range p.data {
			segs = append(segs, code([]byte{0x00}, i32(d.offset), []byte{opEnd}, uleb(uint64(len(d.bytes))), d.bytes))
		}
		out = append(out, section(11, vec(segs...))...)
	}
	return out
}

// answerModule is the smallest program: __app_main returns 42.
var answerModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0e, 0x01, 0x0a, '_', '_', 'a', 'p', 'p', '_', 'm', 'a', 'i', 'n', 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b,
}
