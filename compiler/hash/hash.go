// Package hash derives the stable integer identities that link ellie
// symbols across pages.
//
// A hash is the first eight bytes of a SHA-256 over a versioned, tagged
// serialization of the symbol's module and name, with the sign bit cleared
// so it always fits a non-negative int64 immediate.
package hash

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/chazu/ellie/pkg/bytecode"
)

const mask63 = 1<<63 - 1

// Symbol computes the identity of a symbol of the given kind tag.
func Symbol(tag byte, module, name string) uint64 {
	buf := make([]byte, 0, 10+len(module)+len(name))
	buf = append(buf, HashVersion, tag)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(module)))
	buf = append(buf, module...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(name)))
	buf = append(buf, name...)
	sum := sha256.Sum256(buf)
	return binary.BigEndian.Uint64(sum[:8]) & mask63
}

// Page returns the identity of a source page.
func Page(path string) uint64 { return Symbol(TagPage, path, "") }

// Class returns the identity of a class declared in module.
func Class(module, name string) uint64 { return Symbol(TagClass, module, name) }

// Function returns the identity of a free function declared in module.
func Function(module, name string) uint64 { return Symbol(TagFunction, module, name) }

// Variable returns the identity of a module-level variable.
func Variable(module, name string) uint64 { return Symbol(TagVariable, module, name) }

// Native returns the identity of a native function declaration.
func Native(module, name string) uint64 { return Symbol(TagNative, module, name) }

// Method returns the identity of a method of class in module.
func Method(module, class, name string) uint64 { return Symbol(TagMethod, module, class+"."+name) }

// Getter returns the identity of a getter of class in module.
func Getter(module, class, name string) uint64 { return Symbol(TagGetter, module, class+"."+name) }

// Setter returns the identity of a setter of class in module.
func Setter(module, class, name string) uint64 { return Symbol(TagSetter, module, class+"."+name) }

// Limit narrows h to what an integer immediate of arch can carry.
func Limit(h uint64, arch bytecode.Architecture) uint64 {
	if arch == bytecode.Arch32 {
		return h & (1<<31 - 1)
	}
	return h & mask63
}
