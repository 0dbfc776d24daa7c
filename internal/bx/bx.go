// Package bx holds small fixed-endian byte encoding helpers shared by the
// storage and bptree packages.
package bx

import "encoding/binary"

var LE = binary.LittleEndian

func I32(b []byte) int32  { return int32(LE.Uint32(b)) }
func I64(b []byte) int64  { return int64(LE.Uint64(b)) }
func U32(b []byte) uint32 { return LE.Uint32(b) }

func PutI32(b []byte, v int32) { LE.PutUint32(b, uint32(v)) }
func PutI64(b []byte, v int64) { LE.PutUint64(b, uint64(v)) }
func PutU32(b []byte, v uint32) { LE.PutUint32(b, v) }

func I32At(b []byte, off int) int32        { return I32(b[off:]) }
func I64At(b []byte, off int) int64        { return I64(b[off:]) }
func PutI32At(b []byte, off int, v int32)  { PutI32(b[off:], v) }
func PutI64At(b []byte, off int, v int64)  { PutI64(b[off:], v) }
