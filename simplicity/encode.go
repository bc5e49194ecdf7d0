package simplicity

// BitWriter 按大端位序累积比特，最后一个字节以 0 补齐
type BitWriter struct {
	buf []byte
	n   int
}

// WriteBit 写入一个比特
func (w *BitWriter) WriteBit(bit bool) {
	if w.n%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if bit {
		w.buf[len(w.buf)-1] |= 0x80 >> (w.n % 8)
	}
	w.n++
}

// WriteBits 写入大端字 word 的低 bits 位，高位在前
func (w *BitWriter) WriteBits(word []byte, bits int) {
	total := len(word) * 8
	for i := total - bits; i < total; i++ {
		w.WriteBit(word[i/8]&(0x80>>(i%8)) != 0)
	}
}

// Len 返回已写入的比特数
func (w *BitWriter) Len() int { return w.n }

// Bytes 返回补齐后的字节
func (w *BitWriter) Bytes() []byte {
	return append([]byte(nil), w.buf...)
}

// encode 以紧凑位编码写出值：和类型先写 1 位标签再写所选分支，积类型依次拼接，整数高位在前
func (v Value) encode(w *BitWriter) {
	switch v.typ.kind {
	case KindUnit:
	case KindBool:
		w.WriteBit(v.flag)
	case KindUInt:
		w.WriteBits(v.word, v.typ.bits)
	case KindArray, KindTuple:
		for _, it := range v.items {
			it.encode(w)
		}
	case KindEither:
		w.WriteBit(v.flag)
		v.items[0].encode(w)
	case KindOption:
		w.WriteBit(v.flag)
		if v.flag {
			v.items[0].encode(w)
		}
	}
}

// EncodeTo 将值追加到 w
func (v Value) EncodeTo(w *BitWriter) {
	v.encode(w)
}

// EncodeBits 依次编码多个值并返回补齐后的字节
func EncodeBits(vals ...Value) []byte {
	w := new(BitWriter)
	for _, v := range vals {
		v.encode(w)
	}
	return w.Bytes()
}
