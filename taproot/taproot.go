// Package taproot 实现 Elements 版本的 taproot 承诺：带 "/elements" 后缀的标签哈希、
// Simplicity 叶子版本以及控制块的构造与解析。

package taproot

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// LeafVersion 表示 taproot 叶子的脚本语义版本
type LeafVersion uint8

const (
	// SimplicityLeafVersion 是 Simplicity 程序所用的叶子版本
	SimplicityLeafVersion LeafVersion = 0xbe

	// TapscriptLeafVersion 是 Elements 上 tapscript 的叶子版本
	TapscriptLeafVersion LeafVersion = 0xc4

	// LeafMask 去掉控制块首字节中的奇偶位
	LeafMask = 0xfe
)

const (
	// ControlBlockBaseSize 是控制块的固定部分：叶子版本字节加 x-only 内部公钥
	ControlBlockBaseSize = 33

	// ControlBlockNodeSize 是包含证明中每个兄弟节点哈希的大小
	ControlBlockNodeSize = 32

	// ControlBlockMaxNodeCount 是控制块最多包含的节点数
	ControlBlockMaxNodeCount = 128

	// ControlBlockMaxSize 是控制块的最大长度
	ControlBlockMaxSize = ControlBlockBaseSize + ControlBlockNodeSize*ControlBlockMaxNodeCount
)

// Elements 的标签哈希与比特币不同，带 "/elements" 后缀
var (
	TagTapLeaf   = []byte("TapLeaf/elements")
	TagTapBranch = []byte("TapBranch/elements")
	TagTapTweak  = []byte("TapTweak/elements")
)

var (
	// ErrControlBlockSize 表示控制块长度非法
	ErrControlBlockSize = errors.New("taproot: invalid control block size")

	// ErrMerkleProofInvalid 表示包含证明无法重建输出公钥
	ErrMerkleProofInvalid = errors.New("taproot: merkle proof invalid")

	// ErrOutputKeyParity 表示控制块记录的奇偶性与推导结果不符
	ErrOutputKeyParity = errors.New("taproot: output key parity mismatch")
)

// unspendableKeyHex 是没有已知私钥的 NUMS 点 H 的 x 坐标
const unspendableKeyHex = "50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0"

var unspendableKey *btcec.PublicKey

func init() {
	raw, err := hex.DecodeString(unspendableKeyHex)
	if err != nil {
		panic(err)
	}
	unspendableKey, err = schnorr.ParsePubKey(raw)
	if err != nil {
		panic(err)
	}
}

// UnspendableInternalKey 返回固定的 NUMS 内部公钥，使密钥路径无法花费
func UnspendableInternalKey() *btcec.PublicKey {
	return unspendableKey
}

// ControlBlock 是脚本路径花费时的见证项：叶子版本与输出公钥奇偶位、内部公钥、包含证明
type ControlBlock struct {
	InternalKey     *btcec.PublicKey
	OutputKeyYIsOdd bool
	LeafVersion     LeafVersion
	InclusionProof  []byte
}

// ToBytes 按见证格式序列化控制块
func (c *ControlBlock) ToBytes() ([]byte, error) {
	if c.InternalKey == nil {
		return nil, fmt.Errorf("%w: missing internal key", ErrControlBlockSize)
	}
	if len(c.InclusionProof)%ControlBlockNodeSize != 0 ||
		len(c.InclusionProof) > ControlBlockNodeSize*ControlBlockMaxNodeCount {
		return nil, fmt.Errorf("%w: proof is %d bytes", ErrControlBlockSize, len(c.InclusionProof))
	}

	var b bytes.Buffer
	first := byte(c.LeafVersion) & LeafMask
	if c.OutputKeyYIsOdd {
		first |= 1
	}
	b.WriteByte(first)
	b.Write(schnorr.SerializePubKey(c.InternalKey))
	b.Write(c.InclusionProof)
	return b.Bytes(), nil
}

// RootHash 由揭示的脚本和包含证明重建 merkle 根
func (c *ControlBlock) RootHash(revealedScript []byte) chainhash.Hash {
	acc := NewTapLeaf(c.LeafVersion, revealedScript).TapHash()
	for off := 0; off+ControlBlockNodeSize <= len(c.InclusionProof); off += ControlBlockNodeSize {
		acc = tapBranchHash(acc[:], c.InclusionProof[off:off+ControlBlockNodeSize])
	}
	return acc
}

// ParseControlBlock 解析原始控制块字节
func ParseControlBlock(raw []byte) (*ControlBlock, error) {
	switch {
	case len(raw) < ControlBlockBaseSize:
		return nil, fmt.Errorf("%w: min size is %d bytes, got %d",
			ErrControlBlockSize, ControlBlockBaseSize, len(raw))
	case len(raw) > ControlBlockMaxSize:
		return nil, fmt.Errorf("%w: max size is %d bytes, got %d",
			ErrControlBlockSize, ControlBlockMaxSize, len(raw))
	case (len(raw)-ControlBlockBaseSize)%ControlBlockNodeSize != 0:
		return nil, fmt.Errorf("%w: proof is not a multiple of 32: %d",
			ErrControlBlockSize, len(raw)-ControlBlockBaseSize)
	}

	key, err := schnorr.ParsePubKey(raw[1:ControlBlockBaseSize])
	if err != nil {
		return nil, err
	}
	return &ControlBlock{
		InternalKey:     key,
		OutputKeyYIsOdd: raw[0]&0x01 == 0x01,
		LeafVersion:     LeafVersion(raw[0] & LeafMask),
		InclusionProof:  append([]byte(nil), raw[ControlBlockBaseSize:]...),
	}, nil
}

// ComputeOutputKey 计算 outputKey = internalKey + h_TapTweak/elements(internalKey || root)*G
func ComputeOutputKey(internal *btcec.PublicKey, scriptRoot []byte) *btcec.PublicKey {
	// 只处理 y 为偶数的 x-only 公钥
	xOnly := schnorr.SerializePubKey(internal)
	internalKey, _ := schnorr.ParsePubKey(xOnly)

	tweak := chainhash.TaggedHash(TagTapTweak, xOnly, scriptRoot)

	var tweakScalar btcec.ModNScalar
	tweakScalar.SetBytes((*[32]byte)(tweak))

	var internalPoint, tPoint, outputPoint btcec.JacobianPoint
	internalKey.AsJacobian(&internalPoint)
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tPoint)
	btcec.AddNonConst(&internalPoint, &tPoint, &outputPoint)
	outputPoint.ToAffine()

	return btcec.NewPublicKey(&outputPoint.X, &outputPoint.Y)
}

// IsOdd 判断公钥 y 坐标是否为奇数
func IsOdd(key *btcec.PublicKey) bool {
	return key.SerializeCompressed()[0] == secp.PubKeyFormatCompressedOdd
}

// VerifyLeafCommitment 检查控制块和揭示的脚本能否重建给定的 32 字节见证程序
func VerifyLeafCommitment(cb *ControlBlock, witnessProgram, revealedScript []byte) error {
	root := cb.RootHash(revealedScript)
	outputKey := ComputeOutputKey(cb.InternalKey, root[:])

	if !bytes.Equal(schnorr.SerializePubKey(outputKey), witnessProgram) {
		return ErrMerkleProofInvalid
	}
	if cb.OutputKeyYIsOdd != IsOdd(outputKey) {
		return fmt.Errorf("%w: control block odd=%v, derived odd=%v",
			ErrOutputKeyParity, cb.OutputKeyYIsOdd, IsOdd(outputKey))
	}
	return nil
}

// PayToTaprootScript 返回 OP_1 <32 字节输出公钥>
func PayToTaprootScript(outputKey *btcec.PublicKey) []byte {
	script := make([]byte, 0, 34)
	script = append(script, 0x51, 0x20)
	return append(script, schnorr.SerializePubKey(outputKey)...)
}

// TapNode 是 merkle 树中的分支或叶子
type TapNode interface {
	TapHash() chainhash.Hash
	Left() TapNode
	Right() TapNode
}

// TapLeaf 是一片叶子：叶子版本和脚本。Simplicity 叶子的脚本是 32 字节 CMR。
type TapLeaf struct {
	LeafVersion LeafVersion
	Script      []byte
}

// NewTapLeaf 构造叶子
func NewTapLeaf(version LeafVersion, script []byte) TapLeaf {
	return TapLeaf{LeafVersion: version, Script: script}
}

// NewSimplicityLeaf 以 CMR 作为脚本构造 Simplicity 叶子
func NewSimplicityLeaf(cmr [32]byte) TapLeaf {
	return NewTapLeaf(SimplicityLeafVersion, append([]byte(nil), cmr[:]...))
}

func (t TapLeaf) Left() TapNode { return nil }
func (t TapLeaf) Right() TapNode { return nil }

// TapHash 返回 h_TapLeaf/elements(version || compactSize(script) || script)
func (t TapLeaf) TapHash() chainhash.Hash {
	var enc bytes.Buffer
	enc.WriteByte(byte(t.LeafVersion))
	_ = wire.WriteVarBytes(&enc, 0, t.Script)
	return *chainhash.TaggedHash(TagTapLeaf, enc.Bytes())
}

// TapBranch 是内部分支
type TapBranch struct {
	leftNode  TapNode
	rightNode TapNode
}

// NewTapBranch 由左右节点构造分支
func NewTapBranch(l, r TapNode) TapBranch {
	return TapBranch{leftNode: l, rightNode: r}
}

func (t TapBranch) Left() TapNode { return t.leftNode }
func (t TapBranch) Right() TapNode { return t.rightNode }

// TapHash 返回 h_TapBranch/elements(min || max)，两个子哈希按字典序排列
func (t TapBranch) TapHash() chainhash.Hash {
	l, r := t.leftNode.TapHash(), t.rightNode.TapHash()
	return tapBranchHash(l[:], r[:])
}

func tapBranchHash(l, r []byte) chainhash.Hash {
	if bytes.Compare(l, r) > 0 {
		l, r = r, l
	}
	return *chainhash.TaggedHash(TagTapBranch, l, r)
}

// Proof 证明一片叶子包含在根承诺中
type Proof struct {
	TapLeaf
	RootNode       TapNode
	InclusionProof []byte
}

// ToControlBlock 把包含证明转换为控制块
func (p *Proof) ToControlBlock(internalKey *btcec.PublicKey) ControlBlock {
	root := p.RootNode.TapHash()
	outputKey := ComputeOutputKey(internalKey, root[:])
	return ControlBlock{
		InternalKey:     internalKey,
		OutputKeyYIsOdd: IsOdd(outputKey),
		LeafVersion:     p.LeafVersion,
		InclusionProof:  p.InclusionProof,
	}
}

// IndexedTree 是完整的脚本树，附带按叶子顺序排列的包含证明
type IndexedTree struct {
	RootNode   TapNode
	LeafProofs []Proof

	// LeafIndex 把叶子的 TapHash 映射到 LeafProofs 的下标
	LeafIndex map[chainhash.Hash]int
}

// AssembleScriptTree 由叶子构造平衡的脚本树，同时累积每片叶子的包含证明
func AssembleScriptTree(leaves ...TapLeaf) *IndexedTree {
	tree := &IndexedTree{
		LeafProofs: make([]Proof, len(leaves)),
		LeafIndex:  make(map[chainhash.Hash]int, len(leaves)),
	}
	if len(leaves) == 0 {
		return tree
	}
	for i, leaf := range leaves {
		tree.LeafIndex[leaf.TapHash()] = i
		tree.LeafProofs[i].TapLeaf = leaf
	}

	tree.RootNode = tree.build(0, len(leaves))
	for i := range tree.LeafProofs {
		tree.LeafProofs[i].RootNode = tree.RootNode
	}
	return tree
}

// build 组合 [lo, hi) 范围的叶子，子树内每片叶子的证明追加对侧子树的哈希
func (t *IndexedTree) build(lo, hi int) TapNode {
	if hi-lo == 1 {
		return t.LeafProofs[lo].TapLeaf
	}
	mid := lo + (hi-lo+1)/2
	left, right := t.build(lo, mid), t.build(mid, hi)
	lh, rh := left.TapHash(), right.TapHash()
	for i := lo; i < mid; i++ {
		t.LeafProofs[i].InclusionProof = append(t.LeafProofs[i].InclusionProof, rh[:]...)
	}
	for i := mid; i < hi; i++ {
		t.LeafProofs[i].InclusionProof = append(t.LeafProofs[i].InclusionProof, lh[:]...)
	}
	return NewTapBranch(left, right)
}

// SpendInfo 汇总一个脚本树输出所需的全部承诺数据
type SpendInfo struct {
	InternalKey     *btcec.PublicKey
	OutputKey       *btcec.PublicKey
	OutputKeyYIsOdd bool
	MerkleRoot      chainhash.Hash
	Tree            *IndexedTree
}

// NewSpendInfo 由内部公钥和叶子计算输出公钥
func NewSpendInfo(internalKey *btcec.PublicKey, leaves ...TapLeaf) (*SpendInfo, error) {
	if internalKey == nil {
		return nil, errors.New("taproot: nil internal key")
	}
	if len(leaves) == 0 {
		return nil, errors.New("taproot: no leaves")
	}
	tree := AssembleScriptTree(leaves...)
	root := tree.RootNode.TapHash()
	outputKey := ComputeOutputKey(internalKey, root[:])
	return &SpendInfo{
		InternalKey:     internalKey,
		OutputKey:       outputKey,
		OutputKeyYIsOdd: IsOdd(outputKey),
		MerkleRoot:      root,
		Tree:            tree,
	}, nil
}

// ControlBlock 返回某片叶子的控制块
func (s *SpendInfo) ControlBlock(leaf TapLeaf) (*ControlBlock, error) {
	idx, ok := s.Tree.LeafIndex[leaf.TapHash()]
	if !ok {
		return nil, fmt.Errorf("taproot: leaf %x not in tree", leaf.Script)
	}
	cb := s.Tree.LeafProofs[idx].ToControlBlock(s.InternalKey)
	return &cb, nil
}

// XOnlyOutputKey 返回 32 字节 x-only 输出公钥
func (s *SpendInfo) XOnlyOutputKey() [32]byte {
	var out [32]byte
	copy(out[:], schnorr.SerializePubKey(s.OutputKey))
	return out
}

// ScriptPubKey 返回 segwit v1 输出脚本
func (s *SpendInfo) ScriptPubKey() []byte {
	return PayToTaprootScript(s.OutputKey)
}
