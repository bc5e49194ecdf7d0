package frontend

import (
	"bytes"
	"testing"

	"github.com/qinglongcn/simfchain/simplicity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const p2pk = `
fn main() {
    let pk: Pubkey = param::PK;
    let sig: Signature = witness::SIG;
    assert!(jet::bip_0340_verify((pk, jet::sig_all_hash()), sig));
}
`

// 与 p2pk 只差空白和注释
const p2pkReformatted = `// pay to public key
fn main(){ let pk:Pubkey=param::PK; /* signature */ let sig:Signature=witness::SIG;
assert!(jet::bip_0340_verify((pk,jet::sig_all_hash()),sig)); }`

func compile(t *testing.T, src string) *Template {
	t.Helper()
	tmpl, err := NewCompiler().Compile(src)
	require.NoError(t, err)
	return tmpl
}

func TestCompileP2PK(t *testing.T) {
	tmpl := compile(t, p2pk)

	params := tmpl.Parameters()
	require.Len(t, params, 1)
	assert.Equal(t, simplicity.WitnessName("PK"), params[0].Name)
	assert.True(t, params[0].Type.Equal(simplicity.U256Type))

	witnesses := tmpl.Witnesses()
	require.Len(t, witnesses, 1)
	assert.Equal(t, simplicity.WitnessName("SIG"), witnesses[0].Name)
	assert.Equal(t, 512, witnesses[0].Type.BitWidth())

	assert.Equal(t, []string{"main"}, tmpl.Functions())
	assert.Equal(t, p2pk, tmpl.Source())
}

func TestDigestIgnoresLayout(t *testing.T) {
	a := compile(t, p2pk)
	b := compile(t, p2pkReformatted)
	assert.Equal(t, a.Digest(), b.Digest())

	c := compile(t, `fn main() { let pk: Pubkey = param::PK; let sig: Signature = witness::SIG; assert!(jet::bip_0340_verify((pk, jet::sig_all_msg_hash()), sig)); }`)
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"empty", "  // nothing\n", ErrParse},
		{"no main", "fn helper() { }", ErrParse},
		{"main with args", "fn main(x: u8) { }", ErrParse},
		{"duplicate fn", "fn main() { } fn main() { }", ErrParse},
		{"unbalanced", "fn main() { let x: u8 = 1;", ErrParse},
		{"mismatched", "fn main() { ( }", ErrParse},
		{"bad char", "fn main() { let x = $; }", ErrParse},
		{"open comment", "fn main() { } /* ", ErrParse},
		{"stray item", "let x: u8 = 1; fn main() { }", ErrParse},
		{"reserved name", "fn main() { let x: u8 = param::jet; }", ErrParse},
		{"missing name", "fn main() { let x: u8 = param::(); }", ErrParse},
		{"untyped", "fn main() { assert!(jet::eq_32(param::X, 0)); }", ErrType},
		{"conflicting", "fn main() { let a: u8 = param::X; let b: u16 = param::X; }", ErrType},
		{"unknown type", "fn main() { let a: Blob = witness::W; }", ErrType},
		{"bad alias", "type T = [u8; ]; fn main() { }", ErrType},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewCompiler().Compile(test.src)
			require.ErrorIs(t, err, test.want)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := NewCompiler().Compile("fn main() {\n  let x = $;\n}")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, 11, perr.Col)
}

func TestSlotTypes(t *testing.T) {
	src := `
type Pair = (u8, u16);

fn check(p: Pair) -> bool {
    true
}

fn main() {
    let (a, b): Pair = param::PAIR;
    let flag: bool = witness::FLAG;
    let again: (u8, u16) = param::PAIR;
    let side: Either<u8, [u8; 2]> = witness::SIDE;
    assert!(check(param::PAIR));
}
`
	tmpl := compile(t, src)
	assert.Equal(t, []simplicity.WitnessName{"PAIR"}, tmpl.Parameters().Names())
	assert.Equal(t, []simplicity.WitnessName{"FLAG", "SIDE"}, tmpl.Witnesses().Names())
	assert.Equal(t, []string{"check", "main"}, tmpl.Functions())

	pair, ok := tmpl.Parameters().Lookup("PAIR")
	require.True(t, ok)
	assert.Equal(t, 24, pair.BitWidth())
}

func TestSameNameInBothNamespaces(t *testing.T) {
	tmpl := compile(t, "fn main() { let a: u8 = param::X; let b: u32 = witness::X; }")
	p, _ := tmpl.Parameters().Lookup("X")
	w, _ := tmpl.Witnesses().Lookup("X")
	assert.Equal(t, 8, p.BitWidth())
	assert.Equal(t, 32, w.BitWidth())
}

func TestBindAndCommit(t *testing.T) {
	tmpl := compile(t, p2pk)

	key := func(b byte) simplicity.Arguments {
		var k [32]byte
		k[31] = b
		return simplicity.ArgumentsFrom(map[simplicity.WitnessName]simplicity.Value{"PK": simplicity.Pubkey(k)})
	}

	p1, err := tmpl.Bind(key(1))
	require.NoError(t, err)
	p1again, err := tmpl.Bind(key(1))
	require.NoError(t, err)
	p2, err := tmpl.Bind(key(2))
	require.NoError(t, err)

	assert.Equal(t, p1.CMR(), p1again.CMR())
	assert.NotEqual(t, p1.CMR(), p2.CMR())

	other := compile(t, p2pkReformatted)
	p3, err := other.Bind(key(1))
	require.NoError(t, err)
	assert.Equal(t, p1.CMR(), p3.CMR())
}

func TestBindErrors(t *testing.T) {
	tmpl := compile(t, p2pk)

	_, err := tmpl.Bind(simplicity.Arguments{})
	require.ErrorIs(t, err, ErrBind)

	_, err = tmpl.Bind(simplicity.Arguments{"PK": simplicity.U32(1)})
	require.ErrorIs(t, err, ErrBind)

	_, err = tmpl.Bind(simplicity.Arguments{
		"PK":    simplicity.Pubkey([32]byte{}),
		"EXTRA": simplicity.U8(1),
	})
	require.ErrorIs(t, err, ErrBind)
}

func TestEncode(t *testing.T) {
	tmpl := compile(t, p2pk)
	prog, err := tmpl.Bind(simplicity.Arguments{"PK": simplicity.Pubkey([32]byte{0xaa})})
	require.NoError(t, err)

	var sig [64]byte
	for i := range sig {
		sig[i] = byte(i)
	}
	w := simplicity.NewWitnessBuilder().WithSignature("SIG", sig).Build()

	program, witness, err := prog.Encode(w)
	require.NoError(t, err)
	assert.Equal(t, sig[:], witness)
	assert.True(t, bytes.HasPrefix(program, programMagic))

	// 见证值不参与承诺
	cmr := prog.CMR()
	sig[0] = 0xff
	_, witness2, err := prog.Encode(simplicity.NewWitnessBuilder().WithSignature("SIG", sig).Build())
	require.NoError(t, err)
	assert.NotEqual(t, witness, witness2)
	assert.Equal(t, cmr, prog.CMR())

	_, _, err = prog.Encode(simplicity.WitnessValues{})
	require.ErrorIs(t, err, ErrBind)
	_, _, err = prog.Encode(simplicity.WitnessValues{"SIG": simplicity.U64(1)})
	require.ErrorIs(t, err, ErrBind)
}

func TestNoParameters(t *testing.T) {
	tmpl := compile(t, "fn main() { assert!(true); }")
	assert.Empty(t, tmpl.Parameters())
	assert.Empty(t, tmpl.Witnesses())

	prog, err := tmpl.Bind(simplicity.Arguments{})
	require.NoError(t, err)
	_, witness, err := prog.Encode(simplicity.WitnessValues{})
	require.NoError(t, err)
	assert.Empty(t, witness)
}
