// Package store 用 badger 缓存已实例化合约的元数据：
// 源码摘要、参数、CMR、输出密钥和输出脚本。
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/qinglongcn/simfchain"
	"github.com/qinglongcn/simfchain/simplicity"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	contractPrefix = []byte("contract-") // 合约条目
	scriptPrefix   = []byte("script-")   // 输出脚本到条目键的索引
)

// ErrNotFound 表示缓存中没有对应条目
var ErrNotFound = errors.New("store: entry not found")

// Entry 是一个已实例化合约的缓存条目
type Entry struct {
	SourceDigest string               `json:"source_digest"`
	Path         string               `json:"path,omitempty"`
	Arguments    simplicity.Arguments `json:"arguments"`
	CMR          string               `json:"cmr"`
	OutputKey    string               `json:"output_key"`
	ScriptPubKey string               `json:"script_pubkey"`
	CreatedAt    int64                `json:"created_at"`
}

// Cache 是合约元数据缓存
type Cache struct {
	db *badger.DB
}

// Open 打开 dir 下的缓存；dir 为空时使用内存数据库
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := openDB(dir, opts)
	if err != nil {
		logrus.Errorf("[Open] 打开缓存失败:\t%v", err)
		return nil, err
	}
	return &Cache{db: db}, nil
}

// openDB 打开数据库，如果因为残留的 LOCK 文件失败，删除后重试
func openDB(dir string, opts badger.Options) (*badger.DB, error) {
	db, err := badger.Open(opts)
	if err == nil {
		return db, nil
	}
	if dir == "" || !strings.Contains(err.Error(), "LOCK") {
		return nil, err
	}
	return retry(dir, opts)
}

// retry 删除 LOCK 文件，并以退避方式再次打开
func retry(dir string, opts badger.Options) (*badger.DB, error) {
	lockPath := filepath.Join(dir, "LOCK")
	if err := os.Remove(lockPath); err != nil {
		return nil, fmt.Errorf("移除 LOCK: %w", err)
	}

	var err error
	for i := 0; i < 3; i++ {
		var db *badger.DB
		if db, err = badger.Open(opts); err == nil {
			return db, nil
		}
		logrus.Errorf("打开数据库失败，%d 秒后重试", i+1)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return nil, fmt.Errorf("无法解锁数据库: %w", err)
}

// Close 关闭数据库
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key 返回条目键：源码摘要和参数 JSON 的哈希
func Key(contract *simfchain.Contract, args simplicity.Arguments) ([]byte, error) {
	if args == nil {
		args = simplicity.Arguments{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	digest := contract.Digest()
	argsHash := sha256.Sum256(raw)

	key := append([]byte(nil), contractPrefix...)
	key = append(key, hex.EncodeToString(digest[:])...)
	key = append(key, '-')
	key = append(key, hex.EncodeToString(argsHash[:])...)
	return key, nil
}

// NewEntry 从编译结果生成条目
func NewEntry(cc *simfchain.CompiledContract) *Entry {
	digest := cc.Contract().Digest()
	cmr := cc.CMR()
	key := cc.OutputKey()
	return &Entry{
		SourceDigest: hex.EncodeToString(digest[:]),
		Path:         cc.Contract().Path(),
		Arguments:    cc.Arguments(),
		CMR:          hex.EncodeToString(cmr[:]),
		OutputKey:    hex.EncodeToString(key[:]),
		ScriptPubKey: hex.EncodeToString(cc.ScriptPubKey()),
		CreatedAt:    time.Now().Unix(),
	}
}

// Put 写入条目和输出脚本索引。已存在的条目保持不变。
func (c *Cache) Put(cc *simfchain.CompiledContract) (*Entry, error) {
	key, err := Key(cc.Contract(), cc.Arguments())
	if err != nil {
		return nil, err
	}
	entry := NewEntry(cc)

	err = c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == nil {
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, entry)
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		val, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return fmt.Errorf("存储合约条目失败: %w", err)
		}
		if err := txn.Set(scriptKey(cc.ScriptPubKey()), key); err != nil {
			return fmt.Errorf("存储脚本索引失败: %w", err)
		}
		return nil
	})
	if err != nil {
		logrus.Errorf("[Put] 写入缓存失败:\t%v", err)
		return nil, err
	}
	return entry, nil
}

func scriptKey(script []byte) []byte {
	return append(append([]byte(nil), scriptPrefix...), script...)
}

// Get 按合约和参数读取条目
func (c *Cache) Get(contract *simfchain.Contract, args simplicity.Arguments) (*Entry, error) {
	key, err := Key(contract, args)
	if err != nil {
		return nil, err
	}
	var entry *Entry
	err = c.db.View(func(txn *badger.Txn) error {
		entry, err = getEntry(txn, key)
		return err
	})
	return entry, err
}

func getEntry(txn *badger.Txn, key []byte) (*Entry, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var entry Entry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	}); err != nil {
		return nil, err
	}
	return &entry, nil
}

// LookupScript 按输出脚本查找条目
func (c *Cache) LookupScript(script []byte) (*Entry, error) {
	var entry *Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(scriptKey(script))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entry, err = getEntry(txn, key)
		return err
	})
	return entry, err
}

// List 按键序返回全部条目
func (c *Cache) List() ([]*Entry, error) {
	var entries []*Entry
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(contractPrefix); it.ValidForPrefix(contractPrefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	return entries, err
}

// Delete 删除条目及其脚本索引
func (c *Cache) Delete(contract *simfchain.Contract, args simplicity.Arguments) error {
	key, err := Key(contract, args)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry, err := getEntry(txn, key)
		if err != nil {
			return err
		}
		script, err := hex.DecodeString(entry.ScriptPubKey)
		if err != nil {
			return err
		}
		if err := txn.Delete(scriptKey(script)); err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// Instantiate 实例化合约并记录到缓存。缓存中已有的条目必须与新结果一致。
func (c *Cache) Instantiate(contract *simfchain.Contract, args simplicity.Arguments) (*simfchain.CompiledContract, error) {
	cc, err := contract.Instantiate(args)
	if err != nil {
		return nil, err
	}
	entry, err := c.Put(cc)
	if err != nil {
		return nil, err
	}
	if want := hex.EncodeToString(cc.ScriptPubKey()); entry.ScriptPubKey != want {
		return nil, fmt.Errorf("store: cached script %s does not match %s", entry.ScriptPubKey, want)
	}
	return cc, nil
}

// ScriptPubKeyBytes 返回条目的输出脚本
func (e *Entry) ScriptPubKeyBytes() []byte {
	b, _ := hex.DecodeString(e.ScriptPubKey)
	return b
}

// Matches 判断条目是否对应给定的编译结果
func (e *Entry) Matches(cc *simfchain.CompiledContract) bool {
	cmr := cc.CMR()
	return e.CMR == hex.EncodeToString(cmr[:]) && bytes.Equal(e.ScriptPubKeyBytes(), cc.ScriptPubKey())
}
