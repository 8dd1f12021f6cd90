package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// CompileSPIRV compiles WGSL source to SPIR-V words using naga's default
// options.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	return compile(wgsl, naga.DefaultOptions())
}

func compile(wgsl string, opts naga.CompileOptions) ([]uint32, error) {
	spirvBytes, err := naga.CompileWithOptions(wgsl, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return words(spirvBytes), nil
}

// words reinterprets little-endian SPIR-V bytes as 32-bit words.
func words(spirvBytes []byte) []uint32 {
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code
}
