package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// BytesMD5 计算字节数组MD5
func BytesMD5(data []byte) string {
	hash := md5.New()
	hash.Write(data)
	return hex.EncodeToString(hash.Sum(nil))
}

// PartsMD5 计算多段数据的MD5，每段前写入长度，避免拼接产生歧义
func PartsMD5(parts ...[]byte) string {
	hash := md5.New()
	var size [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range size {
			size[i] = byte(n >> (8 * i))
		}
		hash.Write(size[:])
		hash.Write(p)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
