package wasm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildAddModule hand-assembles the binary for:
//
//	(module
//	  (func (export "add") (param i32 i32) (result i32)
//	    local.get 0
//	    local.get 1
//	    i32.add))
func buildAddModule(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write([]byte{0x01, 0x00, 0x00, 0x00})

	// type section: one type, (i32,i32)->i32
	typeSec := []byte{0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f}
	writeSection(&buf, secType, typeSec)

	// function section: one function, type 0
	writeSection(&buf, secFunction, []byte{0x01, 0x00})

	// export section: "add" -> func 0
	exportSec := []byte{0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00}
	writeSection(&buf, secExport, exportSec)

	// code section: one body, no locals, local.get 0, local.get 1, i32.add, end
	body := []byte{0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}
	codeSec := append([]byte{0x01, byte(len(body))}, body...)
	writeSection(&buf, secCode, codeSec)

	return buf.Bytes()
}

func writeSection(buf *bytes.Buffer, id sectionID, payload []byte) {
	buf.WriteByte(byte(id))
	buf.WriteByte(byte(len(payload)))
	buf.Write(payload)
}

func TestDecodeAddModule(t *testing.T) {
	m, err := DecodeModule(bytes.NewReader(buildAddModule(t)))
	require.NoError(t, err)

	require.Len(t, m.Types, 1)
	require.Equal(t, []ValType{ValTypeI32, ValTypeI32}, m.Types[0].Params)
	require.Equal(t, []ValType{ValTypeI32}, m.Types[0].Results)

	require.Len(t, m.Codes, 1)
	insts := m.Codes[0].Instructions
	require.Equal(t, OpLocalGet, insts[0].Op)
	require.Equal(t, uint32(0), insts[0].Index)
	require.Equal(t, OpLocalGet, insts[1].Op)
	require.Equal(t, uint32(1), insts[1].Index)
	require.Equal(t, OpI32Add, insts[2].Op)
	require.Equal(t, OpEnd, insts[3].Op)

	require.Len(t, m.Exports, 1)
	require.Equal(t, "add", m.Exports[0].Name)
	require.Equal(t, ExternKindFunc, m.Exports[0].Kind)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := DecodeModule(bytes.NewReader([]byte{0, 1, 2, 3, 1, 0, 0, 0}))
	require.Error(t, err)
}
